// dispatcher.go - central broadcast dispatcher.
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

package server

import (
	"sync"

	"github.com/chatterbox-im/chatterbox/server/instrument"
	"github.com/chatterbox-im/chatterbox/wire/commands"
)

// task is the unit of work queued to the central dispatcher.
type task interface{}

// broadcastTask fans the response out to every registered client except
// the originating address.
type broadcastTask struct {
	fromAddr string
	resp     *commands.Response
}

// sendErrTask routes an error response back to a single address, if it is
// still registered.
type sendErrTask struct {
	toAddr string
	resp   *commands.Response
}

// clientMap is the registry of authenticated clients.  Values are the
// sender ends of the per-client outbound channels; the dispatcher is the
// only sender, the client's writer the only receiver.
type clientMap struct {
	sync.RWMutex
	m map[string]chan *commands.Response
}

func newClientMap() *clientMap {
	return &clientMap{m: make(map[string]chan *commands.Response)}
}

func (c *clientMap) insert(addr string, ch chan *commands.Response) {
	c.Lock()
	defer c.Unlock()
	c.m[addr] = ch
}

func (c *clientMap) remove(addr string) {
	c.Lock()
	defer c.Unlock()
	delete(c.m, addr)
}

func (c *clientMap) get(addr string) (chan *commands.Response, bool) {
	c.RLock()
	defer c.RUnlock()
	ch, ok := c.m[addr]
	return ch, ok
}

func (c *clientMap) snapshot() map[string]chan *commands.Response {
	c.RLock()
	defer c.RUnlock()
	snap := make(map[string]chan *commands.Response, len(c.m))
	for addr, ch := range c.m {
		snap[addr] = ch
	}
	return snap
}

// dispatchWorker drains the task queue.  It is the single task that owns
// fan-out; its termination takes the server down.
func (s *Server) dispatchWorker() {
	defer s.log.Debugf("Dispatcher terminating.")

	for {
		var t task
		select {
		case <-s.HaltCh():
			// Drain the tasks already queued, then terminate.
			select {
			case t = <-s.taskCh:
			default:
				return
			}
		case t = <-s.taskCh:
		}
		switch t := t.(type) {
		case *broadcastTask:
			s.doBroadcast(t)
		case *sendErrTask:
			s.doSendErr(t)
		default:
			s.log.Errorf("Dispatcher received unknown task: %T", t)
		}
	}
}

// doBroadcast delivers the response to every client other than the
// source.  Sends never block: a full or vanished outbound channel drops
// the message for that recipient only.
func (s *Server) doBroadcast(t *broadcastTask) {
	s.log.Infof("Broadcasting %v from %v", t.resp, t.fromAddr)
	instrument.Broadcast()

	for addr, ch := range s.clients.snapshot() {
		if addr == t.fromAddr {
			continue
		}
		select {
		case ch <- t.resp:
			s.log.Debugf("Broadcasting to %v", addr)
			instrument.FanoutSend()
		default:
			s.log.Warningf("Dropped broadcast to %v: outbound queue full", addr)
			instrument.FanoutDrop()
		}
	}
}

// doSendErr routes an error to its addressee.  An address that has since
// disconnected is dropped silently.
func (s *Server) doSendErr(t *sendErrTask) {
	ch, ok := s.clients.get(t.toAddr)
	if !ok {
		return
	}
	select {
	case ch <- t.resp:
	default:
		s.log.Warningf("Dropped error %v to %v: outbound queue full", t.resp, t.toAddr)
		instrument.FanoutDrop()
	}
}
