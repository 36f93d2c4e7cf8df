/*
Copyright © 2025 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package bundle

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ConcurrencyQueue bounds how many module refinements may be in flight at
// once. A
// weighted semaphore enforces the parallelism ceiling; an errgroup.Group
// propagates the first task error and cancels every task still waiting on
// the semaphore.
type ConcurrencyQueue struct {
	sem *semaphore.Weighted
	group *errgroup.Group
	ctx context.Context

	mu sync.Mutex
	cond *sync.Cond
	reserved int64
	parallelism int64
}

// NewConcurrencyQueue returns a queue bounded to parallelism simultaneous
// tasks.
func NewConcurrencyQueue(parallelism int) *ConcurrencyQueue {
	if parallelism < 1 {
		parallelism = 1
	}
	group, ctx := errgroup.WithContext(context.Background())
	q := &ConcurrencyQueue{
		sem: semaphore.NewWeighted(int64(parallelism)),
		group: group,
		ctx: ctx,
		parallelism: int64(parallelism),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// half is the back-pressure threshold: a fresh task blocks the caller when
// the queue has more than parallelism/2 reserved tasks.
func (q *ConcurrencyQueue) half() int64 {
	h := q.parallelism / 2
	if h < 1 {
		return 1
	}
	return h
}

// Run submits task for bounded-concurrency execution. The call blocks the
// caller while more than half the queue's parallelism is already reserved
// (queued or running), then returns immediately once a reservation is
// taken; the task itself still waits for an actual semaphore slot before
// running.
func (q *ConcurrencyQueue) Run(task func(ctx context.Context) error) {
	q.mu.Lock()
	for q.reserved > q.half() && q.ctx.Err() == nil {
		q.cond.Wait()
	}
	q.reserved++
	q.mu.Unlock()

	q.group.Go(func() error {
		defer q.release()
		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			return err
		}
		defer q.sem.Release(1)
		return task(q.ctx)
	})
}

func (q *ConcurrencyQueue) release() {
	q.mu.Lock()
	q.reserved--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// OnceHasIdle blocks until at least one execution slot is not reserved.
func (q *ConcurrencyQueue) OnceHasIdle() {
	q.mu.Lock()
	for q.reserved >= q.parallelism && q.ctx.Err() == nil {
		q.cond.Wait()
	}
	q.mu.Unlock()
}

// OnceEnd blocks until every submitted task has completed, returning the
// first error encountered if any. A ConcurrencyQueue is single-use: once
// OnceEnd returns, no further Run calls are expected.
func (q *ConcurrencyQueue) OnceEnd() error {
	return q.group.Wait()
}
