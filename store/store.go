// store.go - persistent user and broadcast store.
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

// Package store persists users and a record of every broadcast.  The
// backing store is a single bolt database; bolt's serialized update
// transactions give the required atomicity for concurrent sign-ups and
// broadcast records.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.etcd.io/bbolt"
	"gopkg.in/op/go-logging.v1"

	"github.com/chatterbox-im/chatterbox/core/log"
	"github.com/chatterbox-im/chatterbox/payload"
)

const (
	usersBucket    = "users"
	messagesBucket = "messages"
)

var (
	// ErrUserDoesNotExist is returned by LogIn for an unknown username.
	ErrUserDoesNotExist = errors.New("store: user does not exist")

	// ErrWrongPassword is returned by LogIn when the password does not
	// match the stored verifier.
	ErrWrongPassword = errors.New("store: wrong password")

	// ErrUsernameTaken is returned by SignUp when the username exists.
	ErrUsernameTaken = errors.New("store: username is already taken")
)

// DatabaseError wraps backing store failures.
type DatabaseError struct {
	Err error
}

// Error implements the error interface.
func (e *DatabaseError) Error() string {
	return fmt.Sprintf("store: database failure: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *DatabaseError) Unwrap() error { return e.Err }

// SecurityError wraps password hashing and verification failures that are
// not simple mismatches.
type SecurityError struct {
	Err error
}

// Error implements the error interface.
func (e *SecurityError) Error() string {
	return fmt.Sprintf("store: security failure: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *SecurityError) Unwrap() error { return e.Err }

// BroadcastRecord is one persisted broadcast.  Exactly one of Text, File
// and Image is non-nil, mirroring the payload union.
type BroadcastRecord struct {
	From    string
	Arrived time.Time

	Text  *string
	File  *FileRecord
	Image *ImageRecord
}

// FileRecord is the persisted form of a file payload.
type FileRecord struct {
	Name  string
	Bytes []byte
}

// ImageRecord is the persisted form of an image payload.
type ImageRecord struct {
	Format uint8
	Bytes  []byte
}

// Store is a handle to the user and broadcast database.  All methods are
// safe for concurrent use.
type Store struct {
	db  *bbolt.DB
	log *logging.Logger
}

// Open opens or creates the database at path.
func Open(path string, logBackend *log.Backend) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(usersBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(messagesBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, &DatabaseError{Err: err}
	}
	return &Store{
		db:  db,
		log: logBackend.GetLogger("store"),
	}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SignUp creates a new user.  The existence check and the insert run in a
// single update transaction, so concurrent sign-ups for the same name
// produce exactly one success and one ErrUsernameTaken.
func (s *Store) SignUp(username, password string) error {
	verifier, err := hashPassword(password)
	if err != nil {
		return &SecurityError{Err: err}
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBucket))
		if bkt.Get([]byte(username)) != nil {
			return ErrUsernameTaken
		}
		return bkt.Put([]byte(username), []byte(verifier))
	})
	switch {
	case err == nil:
		s.log.Debugf("Created user %q", username)
		return nil
	case errors.Is(err, ErrUsernameTaken):
		return err
	default:
		return &DatabaseError{Err: err}
	}
}

// LogIn checks the credentials against the stored verifier.
func (s *Store) LogIn(username, password string) error {
	var verifier []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket([]byte(usersBucket)).Get([]byte(username))
		if v == nil {
			return ErrUserDoesNotExist
		}
		verifier = append([]byte(nil), v...)
		return nil
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrUserDoesNotExist):
		return err
	default:
		return &DatabaseError{Err: err}
	}
	return verifyPassword(string(verifier), password)
}

// RecordBroadcast appends one broadcast record with a store assigned
// timestamp.  The write is a single transaction.
func (s *Store) RecordBroadcast(from string, data *payload.Data) error {
	if err := data.Validate(); err != nil {
		return &DatabaseError{Err: err}
	}

	rec := &BroadcastRecord{
		From:    from,
		Arrived: time.Now().UTC(),
	}
	switch {
	case data.Text != nil:
		body := data.Text.Body
		rec.Text = &body
	case data.File != nil:
		rec.File = &FileRecord{Name: data.File.Name, Bytes: data.File.Bytes}
	case data.Image != nil:
		rec.Image = &ImageRecord{Format: uint8(data.Image.Format), Bytes: data.Image.Bytes}
	}

	blob, err := cbor.Marshal(rec)
	if err != nil {
		return &DatabaseError{Err: err}
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(messagesBucket))
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bkt.Put(key[:], blob)
	})
	if err != nil {
		return &DatabaseError{Err: err}
	}
	return nil
}

// Messages returns up to limit of the most recent broadcast records,
// newest first.  A limit of 0 or less returns everything.
func (s *Store) Messages(limit int) ([]*BroadcastRecord, error) {
	var records []*BroadcastRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(messagesBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rec := new(BroadcastRecord)
			if err := cbor.Unmarshal(v, rec); err != nil {
				return err
			}
			records = append(records, rec)
			if limit > 0 && len(records) == limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, &DatabaseError{Err: err}
	}
	return records, nil
}
