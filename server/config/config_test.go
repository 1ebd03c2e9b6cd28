// config_test.go - server configuration tests.
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

package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	require := require.New(t)

	const body = `
[Server]
Address = "127.0.0.1:22222"
DataDir = "/var/lib/chatterbox"

[Logging]
Level = "DEBUG"

[Metrics]
Address = "127.0.0.1:9100"
`
	cfg, err := Load([]byte(body))
	require.NoError(err)
	require.Equal("127.0.0.1:22222", cfg.Server.Address)
	require.Equal("/var/lib/chatterbox", cfg.Server.DataDir)
	require.Equal(filepath.Join("/var/lib/chatterbox", "chatterbox.db"), cfg.Server.StoreFile())
	require.Equal("DEBUG", cfg.Logging.Level)
	require.Equal("127.0.0.1:9100", cfg.Metrics.Address)
}

func TestLoadConfigDefaults(t *testing.T) {
	require := require.New(t)

	cfg, err := Load([]byte("[Server]\nDataDir = \"/tmp/cbx\"\n"))
	require.NoError(err)
	require.Equal("127.0.0.1:11111", cfg.Server.Address)
	require.Equal("INFO", cfg.Logging.Level)
	require.False(cfg.Logging.Disable)
	require.Equal("", cfg.Metrics.Address)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	require := require.New(t)

	// No Server block.
	_, err := Load([]byte("[Logging]\nLevel = \"INFO\"\n"))
	require.Error(err)

	// Relative data dir.
	_, err = Load([]byte("[Server]\nDataDir = \"relative/path\"\n"))
	require.Error(err)

	// Unknown keys are rejected rather than silently dropped.
	_, err = Load([]byte("[Server]\nDataDir = \"/tmp/cbx\"\nFrobnication = true\n"))
	require.Error(err)

	// Invalid log level.
	_, err = Load([]byte("[Server]\nDataDir = \"/tmp/cbx\"\n\n[Logging]\nLevel = \"LOUD\"\n"))
	require.Error(err)
}
