// worker.go - worker goroutine helpers.
// Copyright (C) 2024  chatterbox authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package worker provides background worker goroutines bound to a common
// halt channel.
package worker

import "sync"

// Worker is a set of managed background goroutines.  It is intended to be
// embedded in structs that own long running goroutines, so that all of them
// can be torn down with a single Halt call.
type Worker struct {
	wg sync.WaitGroup

	initOnce sync.Once
	haltOnce sync.Once
	haltCh   chan struct{}
}

func (w *Worker) initialize() {
	w.haltCh = make(chan struct{})
}

// Go runs fn in a new goroutine tracked by the Worker.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.initialize)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// Halt signals all of the Worker's goroutines to terminate, and waits till
// all of them have done so.
func (w *Worker) Halt() {
	w.initOnce.Do(w.initialize)
	w.haltOnce.Do(func() {
		close(w.haltCh)
	})
	w.wg.Wait()
}

// HaltCh returns the channel that is closed on Halt.  Goroutines started
// via Go select on it to know when to return.
func (w *Worker) HaltCh() <-chan struct{} {
	w.initOnce.Do(w.initialize)
	return w.haltCh
}
