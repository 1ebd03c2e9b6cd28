// config.go - server configuration.
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

// Package config implements the chatterbox server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	defaultAddress  = "127.0.0.1:11111"
	defaultLogLevel = "INFO"

	// defaultStoreFile is the bolt database file created under DataDir.
	defaultStoreFile = "chatterbox.db"
)

// Server is the main server configuration.
type Server struct {
	// Address is the TCP address the server listens on.
	Address string

	// DataDir is the absolute path to the server's state directory.
	DataDir string
}

func (sCfg *Server) validate() error {
	if sCfg.Address == "" {
		sCfg.Address = defaultAddress
	}
	if sCfg.DataDir == "" {
		return fmt.Errorf("config: Server: DataDir is not set")
	}
	if !filepath.IsAbs(sCfg.DataDir) {
		return fmt.Errorf("config: Server: DataDir '%v' is not an absolute path", sCfg.DataDir)
	}
	return nil
}

// StoreFile returns the path of the bolt database file.
func (sCfg *Server) StoreFile() string {
	return filepath.Join(sCfg.DataDir, defaultStoreFile)
}

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool

	// File specifies the log file, if omitted stderr will be used.
	File string

	// Level specifies the log level out of ERROR, WARNING, NOTICE,
	// INFO and DEBUG.
	//
	// Warning: The DEBUG log level is unsafe for production use.
	Level string
}

func (lCfg *Logging) validate() error {
	switch lCfg.Level {
	case "":
		lCfg.Level = defaultLogLevel
	case "ERROR", "WARNING", "NOTICE", "INFO", "DEBUG":
	default:
		return fmt.Errorf("config: Logging: Level '%v' is invalid", lCfg.Level)
	}
	return nil
}

// Metrics is the prometheus metrics configuration.
type Metrics struct {
	// Address is the TCP address the metrics endpoint listens on, the
	// empty string disables the listener.
	Address string
}

// Config is the top level server configuration.
type Config struct {
	Server  *Server
	Logging *Logging
	Metrics *Metrics
}

// FixupAndValidate applies defaults to config entries and validates the
// configuration.
func (cfg *Config) FixupAndValidate() error {
	if cfg.Server == nil {
		return fmt.Errorf("config: No Server block was present")
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
	if err := cfg.Server.validate(); err != nil {
		return err
	}
	return cfg.Logging.validate()
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
