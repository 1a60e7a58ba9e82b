// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import "sync"

// fileLocks hands out one mutex per file path so concurrent requests
// serialize on the documents they touch instead of a global lock.
// Mutexes are created on demand and never removed; the set of paths is
// bounded by the number of leagues and session dates.
type fileLocks struct {
	mu sync.Map // path -> *sync.Mutex
}

func (l *fileLocks) get(path string) *sync.Mutex {
	m, _ := l.mu.LoadOrStore(path, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Lock acquires the mutex for path and returns the unlock function.
func (l *fileLocks) Lock(path string) func() {
	m := l.get(path)
	m.Lock()
	return m.Unlock
}

// LockPair acquires the mutexes for two paths in lexical order so that
// any two operations locking the same pair cannot deadlock. If both
// paths are equal a single lock is taken.
func (l *fileLocks) LockPair(a, b string) func() {
	if a == b {
		return l.Lock(a)
	}
	if b < a {
		a, b = b, a
	}
	ma, mb := l.get(a), l.get(b)
	ma.Lock()
	mb.Lock()
	return func() {
		mb.Unlock()
		ma.Unlock()
	}
}
