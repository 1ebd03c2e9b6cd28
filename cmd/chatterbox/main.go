// main.go - chatterbox terminal client binary.
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

	"github.com/chatterbox-im/chatterbox/client"
)

func main() {
	cfgFile := flag.String("f", "", "Path to the config file")
	address := flag.String("a", "", "Server address override")
	fileDir := flag.String("file-dir", "", "Directory received files are saved into")
	imageDir := flag.String("image-dir", "", "Directory received images are saved into")
	savePNG := flag.Bool("save-png", false, "Save all received images as PNG")
	flag.Parse()

	var cfg *client.Config
	var err error
	if *cfgFile != "" {
		cfg, err = client.LoadFile(*cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config file '%v': %v\n", *cfgFile, err)
			os.Exit(-1)
		}
	} else {
		cfg = new(client.Config)
	}
	if *address != "" {
		cfg.Address = *address
	}
	if *fileDir != "" {
		cfg.FileDir = *fileDir
	}
	if *imageDir != "" {
		cfg.ImageDir = *imageDir
	}
	if *savePNG {
		cfg.SavePNG = true
	}
	if err = cfg.FixupAndValidate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(-1)
	}

	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize client: %v\n", err)
		os.Exit(-1)
	}
	if err = c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
