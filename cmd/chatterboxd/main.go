// main.go - chatterbox relay server binary.
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

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/chatterbox-im/chatterbox/server"
	"github.com/chatterbox-im/chatterbox/server/config"
)

func main() {
	cfgFile := flag.String("f", "", "Path to the config file")
	address := flag.String("a", "", "Listen address override")
	dataDir := flag.String("d", "", "Data directory override")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *cfgFile != "" {
		cfg, err = config.LoadFile(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file '%v': %v\n", *cfgFile, err)
			os.Exit(-1)
		}
	} else {
		cfg = &config.Config{Server: &config.Server{}}
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *dataDir != "" {
		cfg.Server.DataDir = *dataDir
	}
	if cfg.Server.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.Server.DataDir = cwd
		}
	}
	if !filepath.IsAbs(cfg.Server.DataDir) {
		if abs, err := filepath.Abs(cfg.Server.DataDir); err == nil {
			cfg.Server.DataDir = abs
		}
	}
	if err = cfg.FixupAndValidate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(-1)
	}

	svr, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(-1)
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		svr.Shutdown()
	}()

	svr.Wait()
}
