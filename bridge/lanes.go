// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"sync"

	"github.com/bureau-foundation/privbridge/wire"
)

type laneKey struct {
	family wire.Family
	id     string
}

// lanes runs queued deliveries with one goroutine per busy key. Tasks
// for the same key run one at a time in enqueue order; tasks for
// different keys run concurrently.
type lanes struct {
	mu     sync.Mutex
	queues map[laneKey]*[]func()
	wg     sync.WaitGroup
}

func newLanes() *lanes {
	return &lanes{queues: make(map[laneKey]*[]func())}
}

// enqueue appends task to key's queue, starting a goroutine for the
// key if none is running.
func (l *lanes) enqueue(key laneKey, task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if queue, running := l.queues[key]; running {
		*queue = append(*queue, task)
		return
	}
	queue := &[]func(){task}
	l.queues[key] = queue
	l.wg.Add(1)
	go l.run(key, queue)
}

func (l *lanes) run(key laneKey, queue *[]func()) {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		if len(*queue) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		task := (*queue)[0]
		(*queue)[0] = nil
		*queue = (*queue)[1:]
		l.mu.Unlock()

		task()
	}
}

// active returns the number of keys with a running goroutine.
func (l *lanes) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// wait blocks until every lane has drained.
func (l *lanes) wait() {
	l.wg.Wait()
}
