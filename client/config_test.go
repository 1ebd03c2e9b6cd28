// config_test.go - client configuration tests.
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

package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg := new(Config)
	require.NoError(cfg.FixupAndValidate())
	require.Equal("127.0.0.1:11111", cfg.Address)
	require.Equal("files", cfg.FileDir)
	require.Equal("images", cfg.ImageDir)
	require.False(cfg.SavePNG)
	require.Equal("INFO", cfg.Logging.Level)
}

func TestConfigLoad(t *testing.T) {
	require := require.New(t)

	const body = `
Address = "198.51.100.7:11111"
FileDir = "inbox"
SavePNG = true

[Logging]
Disable = true
`
	cfg, err := Load([]byte(body))
	require.NoError(err)
	require.Equal("198.51.100.7:11111", cfg.Address)
	require.Equal("inbox", cfg.FileDir)
	require.Equal("images", cfg.ImageDir)
	require.True(cfg.SavePNG)
	require.True(cfg.Logging.Disable)

	_, err = Load([]byte("Nonsense = 1\n"))
	require.Error(err)

	_, err = Load([]byte("[Logging]\nLevel = \"SHOUTY\"\n"))
	require.Error(err)
}
