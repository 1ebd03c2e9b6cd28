// commands.go - wire protocol commands.
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

// Package commands defines the messages exchanged between the chatterbox
// server and its clients.  Both directions are tagged unions expressed as
// structs with exactly one non-nil field, serialized with CBOR.
package commands

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chatterbox-im/chatterbox/payload"
)

// ErrEmptyCommand is returned when a decoded union has no variant set.
var ErrEmptyCommand = errors.New("commands: no command variant set")

// ErrAmbiguousCommand is returned when a decoded union has more than one
// variant set.
var ErrAmbiguousCommand = errors.New("commands: more than one command variant set")

// Credentials is a username and cleartext password pair, sent only
// during authentication.
type Credentials struct {
	Username string
	Password string
}

// LogIn requests authentication of an existing user.
type LogIn struct {
	Credentials
}

// SignUp requests creation of a new user followed by authentication.
type SignUp struct {
	Credentials
}

// SendToAll requests a broadcast of the carried payload to every other
// authenticated client.
type SendToAll struct {
	Data *payload.Data
}

// Request is the client to server message union.
type Request struct {
	LogIn     *LogIn     `cbor:"login,omitempty"`
	SignUp    *SignUp    `cbor:"signup,omitempty"`
	SendToAll *SendToAll `cbor:"toall,omitempty"`
}

// NewLogIn builds a log-in Request.
func NewLogIn(username, password string) *Request {
	return &Request{LogIn: &LogIn{Credentials{Username: username, Password: password}}}
}

// NewSignUp builds a sign-up Request.
func NewSignUp(username, password string) *Request {
	return &Request{SignUp: &SignUp{Credentials{Username: username, Password: password}}}
}

// NewSendToAll builds a broadcast Request.
func NewSendToAll(data *payload.Data) *Request {
	return &Request{SendToAll: &SendToAll{Data: data}}
}

// IsAuth returns true when the request is an authentication attempt.
func (r *Request) IsAuth() bool {
	return r.LogIn != nil || r.SignUp != nil
}

// Validate checks that exactly one variant of the union is set, and that
// a broadcast request carries a valid payload.
func (r *Request) Validate() error {
	n := 0
	if r.LogIn != nil {
		n++
	}
	if r.SignUp != nil {
		n++
	}
	if r.SendToAll != nil {
		n++
	}
	switch {
	case n == 0:
		return ErrEmptyCommand
	case n > 1:
		return ErrAmbiguousCommand
	}
	if r.SendToAll != nil {
		if r.SendToAll.Data == nil {
			return payload.ErrNoData
		}
		return r.SendToAll.Data.Validate()
	}
	return nil
}

// String returns a short description of the request.  Credentials are
// elided; this is what ends up in log lines and NotAuthenticated errors.
func (r *Request) String() string {
	switch {
	case r.LogIn != nil:
		return fmt.Sprintf("LogIn(%q)", r.LogIn.Username)
	case r.SignUp != nil:
		return fmt.Sprintf("SignUp(%q)", r.SignUp.Username)
	case r.SendToAll != nil:
		return fmt.Sprintf("SendToAll(%v)", r.SendToAll.Data)
	}
	return "Request(empty)"
}

// Marshal serializes Request.
func (r *Request) Marshal() ([]byte, error) {
	return cbor.Marshal(r)
}

// Unmarshal deserializes Request and validates the union.
func (r *Request) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, r); err != nil {
		return err
	}
	return r.Validate()
}

// Authenticated confirms a successful authentication handshake.
type Authenticated struct{}

// DataFrom carries a broadcast payload together with the sender's user
// name.
type DataFrom struct {
	Data *payload.Data
	From string
}

// Response is the server to client message union.
type Response struct {
	Authenticated *Authenticated `cbor:"authenticated,omitempty"`
	Err           *ServerError   `cbor:"error,omitempty"`
	DataFrom      *DataFrom      `cbor:"datafrom,omitempty"`
}

// NewAuthenticated builds the handshake confirmation Response.
func NewAuthenticated() *Response {
	return &Response{Authenticated: &Authenticated{}}
}

// NewError builds an error Response.
func NewError(e *ServerError) *Response {
	return &Response{Err: e}
}

// NewDataFrom builds a broadcast delivery Response.
func NewDataFrom(data *payload.Data, from string) *Response {
	return &Response{DataFrom: &DataFrom{Data: data, From: from}}
}

// Validate checks that exactly one variant of the union is set.
func (r *Response) Validate() error {
	n := 0
	if r.Authenticated != nil {
		n++
	}
	if r.Err != nil {
		n++
	}
	if r.DataFrom != nil {
		n++
	}
	switch {
	case n == 0:
		return ErrEmptyCommand
	case n > 1:
		return ErrAmbiguousCommand
	}
	if r.DataFrom != nil {
		if r.DataFrom.Data == nil {
			return payload.ErrNoData
		}
		return r.DataFrom.Data.Validate()
	}
	return nil
}

// String returns a short description of the response.
func (r *Response) String() string {
	switch {
	case r.Authenticated != nil:
		return "Authenticated"
	case r.Err != nil:
		return fmt.Sprintf("Error(%v)", r.Err)
	case r.DataFrom != nil:
		return fmt.Sprintf("DataFrom(%v, %q)", r.DataFrom.Data, r.DataFrom.From)
	}
	return "Response(empty)"
}

// Marshal serializes Response.
func (r *Response) Marshal() ([]byte, error) {
	return cbor.Marshal(r)
}

// Unmarshal deserializes Response and validates the union.
func (r *Response) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, r); err != nil {
		return err
	}
	return r.Validate()
}
