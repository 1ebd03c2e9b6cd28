// errors.go - server signaled protocol errors.
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

package commands

import "fmt"

// ErrorKind enumerates the failure kinds the server signals to clients.
type ErrorKind uint8

const (
	// ErrorNotAuthenticated is sent when a Greeted connection sends
	// anything other than an authentication request.
	ErrorNotAuthenticated ErrorKind = iota

	// ErrorAlreadyAuthenticated is sent when an authenticated connection
	// sends another authentication request.
	ErrorAlreadyAuthenticated

	// ErrorWrongUser is sent when a log-in names a user that does not
	// exist.
	ErrorWrongUser

	// ErrorWrongPassword is sent when a log-in carries the wrong
	// password.
	ErrorWrongPassword

	// ErrorUsernameTaken is sent when a sign-up names a user that
	// already exists.
	ErrorUsernameTaken

	// ErrorReceiveMsg is sent when the server failed to receive or
	// decode a message on an authenticated connection.
	ErrorReceiveMsg

	// ErrorSendMsg is sent when the server failed to deliver a message.
	ErrorSendMsg
)

// ServerError is the error payload of a Response.  Detail carries a
// description of the offending request for ErrorNotAuthenticated, and the
// receive failure text for ErrorReceiveMsg.
type ServerError struct {
	Kind   ErrorKind
	Detail string
}

// NewNotAuthenticated builds the error sent in reply to req arriving on a
// Greeted connection.
func NewNotAuthenticated(req *Request) *ServerError {
	return &ServerError{Kind: ErrorNotAuthenticated, Detail: req.String()}
}

// NewReceiveMsgError builds the error sent when receiving a message
// failed with err.
func NewReceiveMsgError(err error) *ServerError {
	return &ServerError{Kind: ErrorReceiveMsg, Detail: err.Error()}
}

// String returns a human readable description of the error.
func (e *ServerError) String() string {
	switch e.Kind {
	case ErrorNotAuthenticated:
		return fmt.Sprintf("NotAuthenticated(%s)", e.Detail)
	case ErrorAlreadyAuthenticated:
		return "AlreadyAuthenticated"
	case ErrorWrongUser:
		return "WrongUser"
	case ErrorWrongPassword:
		return "WrongPassword"
	case ErrorUsernameTaken:
		return "UsernameTaken"
	case ErrorReceiveMsg:
		return fmt.Sprintf("ReceiveMsg(%s)", e.Detail)
	case ErrorSendMsg:
		return fmt.Sprintf("SendMsg(%s)", e.Detail)
	}
	return fmt.Sprintf("ServerError(%d)", uint8(e.Kind))
}
