// config.go - client configuration.
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
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const (
	defaultAddress  = "127.0.0.1:11111"
	defaultFileDir  = "files"
	defaultImageDir = "images"
	defaultLogLevel = "INFO"
)

// Logging is the client logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level specifies the log level out of ERROR, WARNING, NOTICE,
	// INFO and DEBUG.
	Level string
}

// Config is the client configuration.
type Config struct {
	// Address is the server's TCP address.
	Address string

	// FileDir is the directory received files are saved into.
	FileDir string

	// ImageDir is the directory received images are saved into.
	ImageDir string

	// SavePNG re-encodes every received image to PNG before saving.
	SavePNG bool

	Logging *Logging
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Address == "" {
		cfg.Address = defaultAddress
	}
	if cfg.FileDir == "" {
		cfg.FileDir = defaultFileDir
	}
	if cfg.ImageDir == "" {
		cfg.ImageDir = defaultImageDir
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	switch cfg.Logging.Level {
	case "":
		cfg.Logging.Level = defaultLogLevel
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", cfg.Logging.Level)
	}
	return nil
}

// Load parses and validates the provided buffer b as a config body and
// returns the Config.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	md, err := toml.Decode(string(b), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) != 0 {
		return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads, parses and validates the provided file and returns the
// Config.
func LoadFile(f string) (*Config, error) {
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
