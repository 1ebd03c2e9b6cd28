// payload.go - broadcast payload model.
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

// Package payload implements the payloads relayed between clients: plain
// text, arbitrary files and images.
package payload

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
)

// UnknownFileName is the name given to a file payload whose source path
// does not end in a usable file name.
const UnknownFileName = "unknown"

// ErrNoData is returned when a Data union has no variant set.
var ErrNoData = errors.New("payload: no data variant set")

// ErrAmbiguousData is returned when a Data union has more than one
// variant set.
var ErrAmbiguousData = errors.New("payload: more than one data variant set")

// LoadError is the error returned when loading a file or image from the
// local filesystem failed.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("payload: failed to load %q: %v", e.Path, e.Err)
}

// Unwrap returns the wrapped error.
func (e *LoadError) Unwrap() error { return e.Err }

// SaveError is the error returned when persisting a received payload to
// the local filesystem failed.
type SaveError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *SaveError) Error() string {
	return fmt.Sprintf("payload: failed to save %q: %v", e.Path, e.Err)
}

// Unwrap returns the wrapped error.
func (e *SaveError) Unwrap() error { return e.Err }

// Text is a plain text payload.
type Text struct {
	Body string
}

// File is an arbitrary file payload.
type File struct {
	// Name is the base name of the file, never a path.
	Name string

	// Bytes is the raw file content.
	Bytes []byte
}

// Data is the payload union.  Exactly one of the fields is non-nil.
type Data struct {
	Text  *Text  `cbor:"text,omitempty"`
	File  *File  `cbor:"file,omitempty"`
	Image *Image `cbor:"image,omitempty"`
}

// NewText returns a Data holding a text payload.
func NewText(body string) *Data {
	return &Data{Text: &Text{Body: body}}
}

// LoadFile reads the file at path into a Data holding a file payload.
// The payload name is the final path component, converted to valid UTF-8,
// or UnknownFileName when the path has no usable final component.
func LoadFile(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Data{File: &File{Name: baseName(path), Bytes: b}}, nil
}

// Save writes the file into dir under its payload name, replacing any
// existing file of that name.  The path written to is returned.
func (f *File) Save(dir string) (string, error) {
	name := f.Name
	if name == "" {
		name = UnknownFileName
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := writeFile(path, f.Bytes); err != nil {
		return "", &SaveError{Path: path, Err: err}
	}
	return path, nil
}

// Validate checks that exactly one variant of the union is set.
func (d *Data) Validate() error {
	n := 0
	if d.Text != nil {
		n++
	}
	if d.File != nil {
		n++
	}
	if d.Image != nil {
		n++
	}
	switch {
	case n == 0:
		return ErrNoData
	case n > 1:
		return ErrAmbiguousData
	}
	return nil
}

// String returns a short human readable description of the payload, used
// in log lines.  Raw bytes are never included.
func (d *Data) String() string {
	switch {
	case d.Text != nil:
		return fmt.Sprintf("Text(%q)", d.Text.Body)
	case d.File != nil:
		return fmt.Sprintf("File(%q, %d bytes)", d.File.Name, len(d.File.Bytes))
	case d.Image != nil:
		return fmt.Sprintf("Image(%v, %d bytes)", d.Image.Format, len(d.Image.Bytes))
	}
	return "Data(empty)"
}

// Marshal serializes Data.
func (d *Data) Marshal() ([]byte, error) {
	return cbor.Marshal(d)
}

// Unmarshal deserializes Data and validates the union.
func (d *Data) Unmarshal(b []byte) error {
	if err := cbor.Unmarshal(b, d); err != nil {
		return err
	}
	return d.Validate()
}

func baseName(path string) string {
	base := filepath.Base(path)
	switch base {
	case ".", "..", string(filepath.Separator):
		return UnknownFileName
	case "":
		return UnknownFileName
	}
	if !utf8.ValidString(base) {
		base = strings.ToValidUTF8(base, string(utf8.RuneError))
	}
	return base
}

func writeFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err = f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
