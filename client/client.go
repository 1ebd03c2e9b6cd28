// client.go - chatterbox terminal client.
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

// Package client implements the chatterbox terminal client: it connects
// to a relay server, sends payloads typed on standard input and renders
// or saves payloads received from peers.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/chatterbox-im/chatterbox/core/log"
	"github.com/chatterbox-im/chatterbox/core/worker"
	"github.com/chatterbox-im/chatterbox/payload"
	"github.com/chatterbox-im/chatterbox/wire"
	"github.com/chatterbox-im/chatterbox/wire/commands"
)

const (
	// commandQueueSize bounds the channel between the stdin parser and
	// the send task.
	commandQueueSize = 128

	connectTimeout = 1 * time.Minute
)

// Client is a chatterbox client instance.
type Client struct {
	worker.Worker

	cfg *Config

	logBackend *log.Backend
	log        *logging.Logger

	conn net.Conn

	// in is the command source, out and errOut the user facing sinks.
	// They exist as fields so tests can substitute pipes.
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	quitOnce sync.Once
	quitCh   chan struct{}

	errLock sync.Mutex
	runErr  error
}

// New constructs a new Client from the validated configuration.
func New(cfg *Config) (*Client, error) {
	logBackend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		logBackend: logBackend,
		log:        logBackend.GetLogger("client"),
		in:         os.Stdin,
		out:        os.Stdout,
		errOut:     os.Stderr,
		quitCh:     make(chan struct{}),
	}, nil
}

// Run connects to the server and relays between the terminal and the
// connection until a .quit command, terminal EOF or a connection failure.
// The returned error is nil exactly when the session ended locally.
func (c *Client) Run() error {
	if err := os.MkdirAll(c.cfg.FileDir, 0700); err != nil {
		return err
	}
	if err := os.MkdirAll(c.cfg.ImageDir, 0700); err != nil {
		return err
	}

	var err error
	c.conn, err = net.DialTimeout("tcp", c.cfg.Address, connectTimeout)
	if err != nil {
		return fmt.Errorf("client: connection to the server failed, make sure it is running: %w", err)
	}
	c.log.Infof("Connected to %v", c.cfg.Address)
	fmt.Fprintln(c.out, "Please .login with user and password or .signup to create a new one.")

	cmdCh := make(chan Command, commandQueueSize)

	// The stdin parser runs outside the Worker: an in-progress terminal
	// read cannot be cancelled, so it must not be waited for either.
	go c.parseInput(cmdCh)

	c.Go(func() { c.sendWorker(cmdCh) })
	c.Go(c.receiveWorker)

	<-c.quitCh
	// Closing the socket unblocks the receive worker's pending read.
	c.conn.Close()
	c.Halt()

	c.errLock.Lock()
	defer c.errLock.Unlock()
	return c.runErr
}

// signalQuit makes the first quit cause win; everything downstream of the
// quit channel treats subsequent socket errors as part of shutdown.
func (c *Client) signalQuit() {
	c.quitOnce.Do(func() {
		close(c.quitCh)
	})
}

func (c *Client) quitting() bool {
	select {
	case <-c.quitCh:
		return true
	default:
		return false
	}
}

func (c *Client) setErr(err error) {
	c.errLock.Lock()
	defer c.errLock.Unlock()
	if c.runErr == nil {
		c.runErr = err
	}
}

// parseInput reads the terminal one line at a time and forwards parsed
// commands.  It closes the command channel on .quit or EOF.
func (c *Client) parseInput(cmdCh chan<- Command) {
	defer close(cmdCh)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		cmd, err := ParseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintf(c.errOut, "Couldn't create your message (error: %v)\n", err)
			continue
		}
		if _, ok := cmd.(*QuitCommand); ok {
			fmt.Fprintln(c.out, "Goodbye!")
			return
		}
		select {
		case cmdCh <- cmd:
		case <-c.quitCh:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Errorf("Terminal read failure: %v", err)
	}
}

// sendWorker turns commands into wire messages.  Failures to load local
// files drop the command with a note; the session continues.
func (c *Client) sendWorker(cmdCh <-chan Command) {
	defer c.signalQuit()

	for {
		select {
		case <-c.HaltCh():
			return
		case cmd, ok := <-cmdCh:
			if !ok {
				return
			}
			req, err := c.buildRequest(cmd)
			if err != nil {
				fmt.Fprintf(c.errOut, "Couldn't create your message (error: %v)\n", err)
				continue
			}
			if err := wire.WriteMessage(c.conn, req); err != nil {
				c.log.Errorf("Send failure: %v", err)
				c.setErr(fmt.Errorf("client: sending your message to the server failed: %w", err))
				return
			}
		}
	}
}

func (c *Client) buildRequest(cmd Command) (*commands.Request, error) {
	switch cmd := cmd.(type) {
	case *LogInCommand:
		return commands.NewLogIn(cmd.Username, cmd.Password), nil
	case *SignUpCommand:
		return commands.NewSignUp(cmd.Username, cmd.Password), nil
	case *FileCommand:
		data, err := payload.LoadFile(cmd.Path)
		if err != nil {
			return nil, err
		}
		return commands.NewSendToAll(data), nil
	case *ImageCommand:
		data, err := payload.LoadImage(cmd.Path)
		if err != nil {
			return nil, err
		}
		return commands.NewSendToAll(data), nil
	case *TextCommand:
		return commands.NewSendToAll(payload.NewText(cmd.Body)), nil
	}
	return nil, fmt.Errorf("client: unhandled command %T", cmd)
}

// receiveWorker reads server messages until the connection goes away.
func (c *Client) receiveWorker() {
	defer c.signalQuit()

	for {
		resp := new(commands.Response)
		if err := wire.ReadMessage(c.conn, resp); err != nil {
			if c.quitting() {
				return
			}
			if errors.Is(err, wire.ErrDisconnected) {
				fmt.Fprintln(c.errOut, "Server closed the connection.")
			}
			c.log.Errorf("Receive failure: %v", err)
			c.setErr(fmt.Errorf("client: reading a message from the server failed: %w", err))
			return
		}
		c.processResponse(resp)
	}
}

// processResponse renders one server message, or saves its payload.
func (c *Client) processResponse(resp *commands.Response) {
	switch {
	case resp.DataFrom != nil:
		c.processDataFrom(resp.DataFrom)
	case resp.Authenticated != nil:
		fmt.Fprintln(c.out, "Welcome!")
	case resp.Err != nil:
		c.processServerError(resp.Err)
	}
}

func (c *Client) processDataFrom(d *commands.DataFrom) {
	data := d.Data
	switch {
	case data.Text != nil:
		fmt.Fprintf(c.out, "%s: %s\n", d.From, data.Text.Body)
	case data.File != nil:
		fmt.Fprintf(c.out, "Received %q from %s\n", data.File.Name, d.From)
		if _, err := data.File.Save(c.cfg.FileDir); err != nil {
			fmt.Fprintf(c.errOut, "...saving the file %q failed! Err: %v\n", data.File.Name, err)
		}
	case data.Image != nil:
		fmt.Fprintf(c.out, "Received image from %s...\n", d.From)
		var path string
		var err error
		if c.cfg.SavePNG {
			path, err = data.Image.SaveAsPNG(c.cfg.ImageDir)
		} else {
			path, err = data.Image.Save(c.cfg.ImageDir)
		}
		if err != nil {
			fmt.Fprintf(c.errOut, "...saving the image failed! Err: %v\n", err)
			return
		}
		fmt.Fprintf(c.out, "...image was saved to %q\n", path)
	}
}

func (c *Client) processServerError(e *commands.ServerError) {
	switch e.Kind {
	case commands.ErrorWrongPassword:
		fmt.Fprintln(c.errOut, "Given password is not correct")
	case commands.ErrorWrongUser:
		fmt.Fprintln(c.errOut, "The user does not exist, you can create it with a .signup")
	case commands.ErrorUsernameTaken:
		fmt.Fprintln(c.errOut, "Unfortunately this username is already taken, choose another one.")
	case commands.ErrorNotAuthenticated:
		fmt.Fprintf(c.errOut, "You must authenticate first (attempted: %s)\n", e.Detail)
	case commands.ErrorAlreadyAuthenticated:
		fmt.Fprintln(c.errOut, "You are already authenticated")
	default:
		fmt.Fprintf(c.errOut, "Error: %v\n", e)
	}
}
