// session.go - per connection reader and writer tasks.
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
	"errors"
	"fmt"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/chatterbox-im/chatterbox/core/worker"
	"github.com/chatterbox-im/chatterbox/server/instrument"
	"github.com/chatterbox-im/chatterbox/store"
	"github.com/chatterbox-im/chatterbox/wire"
	"github.com/chatterbox-im/chatterbox/wire/commands"
)

// outboundQueueSize bounds the per-client outbound channel.  A slow
// consumer beyond this depth has broadcasts dropped rather than blocking
// the dispatcher.
const outboundQueueSize = 128

// session is one accepted connection.  Until authentication succeeds the
// connection is in the greeted state; afterwards a reader and a writer
// task run on the split halves of the socket.
type session struct {
	worker.Worker

	srv  *Server
	conn net.Conn
	log  *logging.Logger

	addr string
	user string

	outbound     chan *commands.Response
	readerDoneCh chan struct{}

	closeOnce sync.Once
}

func newSession(srv *Server, conn net.Conn) *session {
	addr := conn.RemoteAddr().String()
	return &session{
		srv:          srv,
		conn:         conn,
		log:          srv.logBackend.GetLogger(fmt.Sprintf("conn:%v", addr)),
		addr:         addr,
		readerDoneCh: make(chan struct{}),
	}
}

// stop closes the socket to unblock any in-progress read or write, and
// waits for the session's workers to terminate.
func (s *session) stop() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
	s.Halt()
}

// readerWorker drives the whole connection lifecycle: handshake, client
// map registration, then the read loop.  Its exit deregisters the client
// and terminates the writer.
func (s *session) readerWorker() {
	defer func() {
		close(s.readerDoneCh)
		s.closeOnce.Do(func() {
			s.conn.Close()
		})
		s.srv.onClosedSession(s)
	}()

	user, err := s.authenticate()
	if err != nil {
		s.log.Errorf("Authentication failed: %v", err)
		instrument.AuthFailure()
		return
	}
	s.user = user
	s.log.Infof("Authenticated as %q", user)

	s.outbound = make(chan *commands.Response, outboundQueueSize)
	s.srv.clients.insert(s.addr, s.outbound)
	instrument.ClientRegistered()
	defer func() {
		s.srv.clients.remove(s.addr)
		instrument.ClientDeregistered()
	}()

	s.Go(s.writerWorker)
	s.readLoop()
}

// authenticate runs the handshake state machine.  The connection stays
// greeted across failed attempts; the error return means the socket is to
// be dropped.
func (s *session) authenticate() (string, error) {
	for {
		req := new(commands.Request)
		if err := wire.ReadMessage(s.conn, req); err != nil {
			return "", err
		}

		var serr *commands.ServerError
		switch {
		case req.LogIn != nil:
			err := s.srv.store.LogIn(req.LogIn.Username, req.LogIn.Password)
			switch {
			case err == nil:
				return req.LogIn.Username, s.confirmAuthentication()
			case errors.Is(err, store.ErrUserDoesNotExist):
				serr = &commands.ServerError{Kind: commands.ErrorWrongUser}
			case errors.Is(err, store.ErrWrongPassword):
				serr = &commands.ServerError{Kind: commands.ErrorWrongPassword}
			default:
				return "", err
			}
		case req.SignUp != nil:
			err := s.srv.store.SignUp(req.SignUp.Username, req.SignUp.Password)
			switch {
			case err == nil:
				return req.SignUp.Username, s.confirmAuthentication()
			case errors.Is(err, store.ErrUsernameTaken):
				serr = &commands.ServerError{Kind: commands.ErrorUsernameTaken}
			default:
				return "", err
			}
		default:
			serr = commands.NewNotAuthenticated(req)
		}

		if err := wire.WriteMessage(s.conn, commands.NewError(serr)); err != nil {
			return "", err
		}
	}
}

func (s *session) confirmAuthentication() error {
	return wire.WriteMessage(s.conn, commands.NewAuthenticated())
}

// readLoop receives messages until the peer goes away, classifying each
// into a dispatcher task.
func (s *session) readLoop() {
	for {
		var t task

		req := new(commands.Request)
		err := wire.ReadMessage(s.conn, req)
		switch {
		case err == nil && req.SendToAll != nil:
			// The broadcast is recorded before it is enqueued; a
			// record failure must never stop delivery.
			if err := s.srv.store.RecordBroadcast(s.user, req.SendToAll.Data); err != nil {
				s.log.Warningf("Failed to record broadcast: %v", err)
				instrument.RecordFailure()
			}
			t = &broadcastTask{
				fromAddr: s.addr,
				resp:     commands.NewDataFrom(req.SendToAll.Data, s.user),
			}
		case err == nil && req.IsAuth():
			t = &sendErrTask{
				toAddr: s.addr,
				resp:   commands.NewError(&commands.ServerError{Kind: commands.ErrorAlreadyAuthenticated}),
			}
		case errors.Is(err, wire.ErrDisconnected):
			s.log.Debugf("Peer disconnected.")
			return
		default:
			s.log.Warningf("Receive failure: %v", err)
			t = &sendErrTask{
				toAddr: s.addr,
				resp:   commands.NewError(commands.NewReceiveMsgError(err)),
			}
		}

		select {
		case s.srv.taskCh <- t:
		case <-s.HaltCh():
			return
		}
	}
}

// writerWorker drains the outbound channel into the socket.  A peer
// disconnect terminates the task; any other write failure is logged and
// the task keeps draining so the bounded channel cannot back up forever.
func (s *session) writerWorker() {
	for {
		select {
		case <-s.HaltCh():
			return
		case <-s.readerDoneCh:
			return
		case resp := <-s.outbound:
			err := wire.WriteMessage(s.conn, resp)
			switch {
			case err == nil:
			case errors.Is(err, wire.ErrDisconnected):
				s.log.Debugf("Writer terminating: peer disconnected.")
				return
			default:
				s.log.Errorf("Failed to write %v: %v", resp, err)
			}
		}
	}
}
