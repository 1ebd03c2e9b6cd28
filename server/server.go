// server.go - chatterbox relay server.
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

// Package server implements the chatterbox relay server: a TCP listener
// that authenticates clients against the user store and broadcasts every
// authenticated client's payloads to all the others.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/chatterbox-im/chatterbox/core/log"
	"github.com/chatterbox-im/chatterbox/core/worker"
	"github.com/chatterbox-im/chatterbox/server/config"
	"github.com/chatterbox-im/chatterbox/server/instrument"
	"github.com/chatterbox-im/chatterbox/store"
	"github.com/chatterbox-im/chatterbox/wire/commands"
)

// taskQueueSize bounds the central dispatcher's task queue.
const taskQueueSize = 1024

// ErrShutdown is the error returned when the server is shutting down.
var ErrShutdown = errors.New("server: shutdown requested")

// Server is a chatterbox relay server instance.
type Server struct {
	worker.Worker

	cfg *config.Config

	logBackend *log.Backend
	log        *logging.Logger

	store    *store.Store
	listener net.Listener

	clients *clientMap
	taskCh  chan task

	sessionsLock sync.Mutex
	sessions     map[*session]struct{}

	haltedCh     chan struct{}
	shutdownOnce sync.Once
}

// New constructs a new Server from the validated configuration, binds the
// listener and starts accepting connections.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		clients:  newClientMap(),
		taskCh:   make(chan task, taskQueueSize),
		sessions: make(map[*session]struct{}),
		haltedCh: make(chan struct{}),
	}

	var err error
	s.logBackend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	s.log = s.logBackend.GetLogger("server")

	s.store, err = store.Open(cfg.Server.StoreFile(), s.logBackend)
	if err != nil {
		s.log.Errorf("Failed to open store: %v", err)
		return nil, err
	}

	s.listener, err = net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		s.store.Close()
		s.log.Errorf("Failed to bind %v: %v", cfg.Server.Address, err)
		return nil, err
	}
	s.log.Noticef("Listening on %v", s.listener.Addr())

	if cfg.Metrics.Address != "" {
		instrument.StartMetricsListener(cfg.Metrics.Address, s.logBackend.GetLogger("instrument"))
	}

	s.Go(s.dispatchWorker)
	s.Go(s.listenWorker)
	return s, nil
}

// Addr returns the address the listener is bound to, useful when the
// configured port was 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// LogBackend returns the server's logging backend.
func (s *Server) LogBackend() *log.Backend {
	return s.logBackend
}

// Store returns the server's user store handle.
func (s *Server) Store() *store.Store {
	return s.store
}

// Wait blocks until the server has been shut down.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown gracefully stops the server: the listener stops accepting, all
// sessions are torn down, the dispatcher drains and the store is closed.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Noticef("Shutting down.")
		s.listener.Close()

		s.sessionsLock.Lock()
		sessions := make([]*session, 0, len(s.sessions))
		for ses := range s.sessions {
			sessions = append(sessions, ses)
		}
		s.sessionsLock.Unlock()
		for _, ses := range sessions {
			ses.stop()
		}

		s.Halt()
		s.store.Close()
		s.log.Noticef("Shutdown complete.")
		close(s.haltedCh)
	})
}

// listenWorker accepts connections until the listener is closed.
func (s *Server) listenWorker() {
	defer s.listener.Close()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case <-s.HaltCh():
				return
			default:
			}
			s.log.Errorf("Accept failure: %v", err)
			continue
		}
		s.onNewConn(conn)
	}
}

func (s *Server) onNewConn(conn net.Conn) {
	s.log.Infof("Incoming connection from %v", conn.RemoteAddr())
	instrument.Connection()

	ses := newSession(s, conn)
	s.sessionsLock.Lock()
	s.sessions[ses] = struct{}{}
	s.sessionsLock.Unlock()
	ses.Go(ses.readerWorker)
}

func (s *Server) onClosedSession(ses *session) {
	s.sessionsLock.Lock()
	delete(s.sessions, ses)
	s.sessionsLock.Unlock()

	s.log.Infof("Connection from %v closed", ses.addr)
	instrument.Disconnection()
}

// enqueueTask queues t for the central dispatcher; used by tests that
// exercise the dispatcher directly.
func (s *Server) enqueueTask(t task) error {
	select {
	case s.taskCh <- t:
		return nil
	case <-s.HaltCh():
		return ErrShutdown
	}
}

// sendErrTo builds the error routing task for to.
func sendErrTo(to string, e *commands.ServerError) *sendErrTask {
	return &sendErrTask{toAddr: to, resp: commands.NewError(e)}
}

// String returns a description of the server suitable for logging.
func (s *Server) String() string {
	return fmt.Sprintf("chatterbox server on %v", s.listener.Addr())
}
