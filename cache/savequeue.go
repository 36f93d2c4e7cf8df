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

package cache

import "sync"

// skipableQueue ensures at most one disk write is in flight for a given
// module: a new save supersedes any not-yet-started queued save, dropping
// the older task rather than running both.
type skipableQueue struct {
	mu sync.Mutex
	running bool
	pending *RefinedModule
}

// Submit enqueues refined to be written by run. If a write is already in
// flight, refined replaces any not-yet-started pending write.
func (q *skipableQueue) Submit(refined *RefinedModule, run func(*RefinedModule) error, onError func(error)) {
	q.mu.Lock()
	if q.running {
		q.pending = refined
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain(refined, run, onError)
}

func (q *skipableQueue) drain(refined *RefinedModule, run func(*RefinedModule) error, onError func(error)) {
	for {
		if err := run(refined); err != nil && onError != nil {
			onError(err)
		}
		q.mu.Lock()
		if q.pending != nil {
			refined = q.pending
			q.pending = nil
			q.mu.Unlock()
			continue
		}
		q.running = false
		q.mu.Unlock()
		return
	}
}
