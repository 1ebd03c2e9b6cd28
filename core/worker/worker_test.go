// worker_test.go - worker tests.
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

package worker

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHaltStopsAllWorkers(t *testing.T) {
	require := require.New(t)

	var w Worker
	var stopped int32
	for i := 0; i < 3; i++ {
		w.Go(func() {
			<-w.HaltCh()
			atomic.AddInt32(&stopped, 1)
		})
	}

	done := make(chan struct{})
	go func() {
		w.Halt()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Halt did not return")
	}
	require.Equal(int32(3), atomic.LoadInt32(&stopped))
}

func TestHaltIsIdempotent(t *testing.T) {
	var w Worker
	w.Go(func() { <-w.HaltCh() })
	w.Halt()
	w.Halt()
}

func TestHaltChBeforeGo(t *testing.T) {
	var w Worker
	select {
	case <-w.HaltCh():
		t.Fatal("HaltCh closed before Halt")
	default:
	}
}
