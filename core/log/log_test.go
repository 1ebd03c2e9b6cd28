// log_test.go - logging backend tests.
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

package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "test.log")
	b, err := New(f, "INFO", false)
	require.NoError(err)

	l := b.GetLogger("testmod")
	l.Info("informative")
	l.Debug("too detailed to appear")

	content, err := os.ReadFile(f)
	require.NoError(err)
	require.Contains(string(content), "testmod")
	require.Contains(string(content), "informative")
	require.NotContains(string(content), "too detailed to appear")
}

func TestInvalidLevel(t *testing.T) {
	_, err := New("", "LOUD", false)
	require.Error(t, err)
}

func TestDisabledBackend(t *testing.T) {
	require := require.New(t)

	b, err := New("", "DEBUG", true)
	require.NoError(err)
	// Nothing to observe, just must not blow up.
	b.GetLogger("quiet").Error("dropped")
}
