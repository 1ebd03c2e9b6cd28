// store_test.go - user and broadcast store tests.
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

package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatterbox-im/chatterbox/core/log"
	"github.com/chatterbox-im/chatterbox/payload"
)

func newTestStore(t *testing.T) *Store {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	s, err := Open(filepath.Join(t.TempDir(), "test.db"), logBackend)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSignUpAndLogIn(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	require.NoError(s.SignUp("alice", "p1"))
	require.NoError(s.LogIn("alice", "p1"))
	require.ErrorIs(s.LogIn("alice", "p2"), ErrWrongPassword)
	require.ErrorIs(s.LogIn("bob", "p1"), ErrUserDoesNotExist)
	require.ErrorIs(s.SignUp("alice", "p2"), ErrUsernameTaken)

	// The original password still works after the rejected sign-up.
	require.NoError(s.LogIn("alice", "p1"))
}

func TestSignUpConcurrent(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SignUp("carol", "pw")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(err, ErrUsernameTaken)
		}
	}
	require.Equal(1, succeeded)
	require.NoError(s.LogIn("carol", "pw"))
}

func TestPasswordVerifierFormat(t *testing.T) {
	require := require.New(t)

	verifier, err := hashPassword("correct horse")
	require.NoError(err)

	// PHC string recording the parameter set.
	require.Regexp(`^\$argon2id\$v=\d+\$m=\d+,t=\d+,p=\d+\$`, verifier)

	require.NoError(verifyPassword(verifier, "correct horse"))
	require.ErrorIs(verifyPassword(verifier, "battery staple"), ErrWrongPassword)

	var secErr *SecurityError
	require.ErrorAs(verifyPassword("$nonsense$", "x"), &secErr)
}

func TestRecordBroadcast(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	before := time.Now().UTC().Add(-time.Second)
	require.NoError(s.RecordBroadcast("alice", payload.NewText("hello")))
	require.NoError(s.RecordBroadcast("bob", &payload.Data{
		File: &payload.File{Name: "a.txt", Bytes: []byte{1, 2}},
	}))
	require.NoError(s.RecordBroadcast("alice", &payload.Data{
		Image: &payload.Image{Format: payload.FormatPNG, Bytes: []byte{3, 4}},
	}))

	records, err := s.Messages(0)
	require.NoError(err)
	require.Len(records, 3)

	// Newest first.
	require.NotNil(records[0].Image)
	require.NotNil(records[1].File)
	require.NotNil(records[2].Text)
	require.Equal("hello", *records[2].Text)
	require.Equal("a.txt", records[1].File.Name)
	require.Equal("alice", records[0].From)

	for _, rec := range records {
		require.False(rec.Arrived.Before(before))
		n := 0
		if rec.Text != nil {
			n++
		}
		if rec.File != nil {
			n++
		}
		if rec.Image != nil {
			n++
		}
		require.Equal(1, n)
	}

	limited, err := s.Messages(2)
	require.NoError(err)
	require.Len(limited, 2)
	require.NotNil(limited[0].Image)
}

func TestRecordBroadcastRejectsInvalid(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.RecordBroadcast("alice", &payload.Data{}))
}

func TestRecordBroadcastConcurrent(t *testing.T) {
	require := require.New(t)
	s := newTestStore(t)

	errs := make([]error, 16)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.RecordBroadcast("alice", payload.NewText("spam"))
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(err)
	}

	records, err := s.Messages(0)
	require.NoError(err)
	require.Len(records, 16)
}
