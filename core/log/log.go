// log.go - logging backend.
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

// Package log provides a logging backend, centered around the go-logging
// package.
package log

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"
	"sync"

	"gopkg.in/op/go-logging.v1"
)

const fmtStr = "%{time:15:04:05.000} %{level:.4s} %{module}: %{message}"

// Backend is a log backend.
type Backend struct {
	sync.Mutex

	backend logging.LeveledBackend
	f       *os.File
	w       io.Writer
	level   logging.Level
}

// GetLogger returns a per-module logger that writes to the backend.
func (b *Backend) GetLogger(module string) *logging.Logger {
	b.Lock()
	defer b.Unlock()

	l := logging.MustGetLogger(module)
	l.SetBackend(b.backend)
	return l
}

// New initializes a logging backend.  If f is the empty string, logs are
// written to os.Stderr, otherwise they are appended to the given file.
// Level must be one of ERROR, WARNING, NOTICE, INFO or DEBUG.  If disable
// is set all log output is discarded.
func New(f string, level string, disable bool) (*Backend, error) {
	lvl, err := logLevelFromString(level)
	if err != nil {
		return nil, err
	}

	b := new(Backend)
	b.level = lvl
	if disable {
		b.w = ioutil.Discard
	} else if f == "" {
		b.w = os.Stderr
	} else {
		flags := os.O_CREATE | os.O_APPEND | os.O_WRONLY
		b.f, err = os.OpenFile(f, flags, 0600)
		if err != nil {
			return nil, fmt.Errorf("log: failed to open log file: %v", err)
		}
		b.w = b.f
	}

	base := logging.NewLogBackend(b.w, "", 0)
	formatted := logging.NewBackendFormatter(base, logging.MustStringFormatter(fmtStr))
	b.backend = logging.AddModuleLevel(formatted)
	b.backend.SetLevel(lvl, "")

	return b, nil
}

func logLevelFromString(l string) (logging.Level, error) {
	switch strings.ToUpper(l) {
	case "ERROR":
		return logging.ERROR, nil
	case "WARNING":
		return logging.WARNING, nil
	case "NOTICE":
		return logging.NOTICE, nil
	case "INFO":
		return logging.INFO, nil
	case "DEBUG":
		return logging.DEBUG, nil
	default:
		return logging.ERROR, fmt.Errorf("log: invalid level: '%v'", l)
	}
}
