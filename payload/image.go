// image.go - image payloads, format identification and PNG conversion.
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

package payload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// Format identifies the codec an image payload is encoded with.
type Format uint8

// The closed set of supported image formats.
const (
	FormatPNG Format = iota
	FormatJPEG
	FormatGIF
	FormatWebP
	FormatPNM
	FormatTIFF
	FormatTGA
	FormatDDS
	FormatBMP
	FormatICO
	FormatHDR
	FormatOpenEXR
	FormatFarbfeld
	FormatAvif
	FormatQOI
)

// DecodeError is the error returned when image bytes do not decode under
// the format they claim to be encoded with.
type DecodeError struct {
	Format Format
	Err    error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("payload: image does not decode as %v: %v", e.Format, e.Err)
}

// Unwrap returns the wrapped error.
func (e *DecodeError) Unwrap() error { return e.Err }

// ConvertError is the error returned when re-encoding a decoded image to
// PNG failed.
type ConvertError struct {
	Err error
}

// Error implements the error interface.
func (e *ConvertError) Error() string {
	return fmt.Sprintf("payload: PNG conversion failed: %v", e.Err)
}

// Unwrap returns the wrapped error.
func (e *ConvertError) Unwrap() error { return e.Err }

// ErrUnknownImageFormat is returned when neither the magic number nor the
// file extension identify a supported image format.
var ErrUnknownImageFormat = errors.New("payload: unrecognized image format")

type formatInfo struct {
	name string

	// ext is the primary file extension, without the leading dot.
	ext string

	// extensions are all extensions mapped back to the format.
	extensions []string

	// magics are the accepted file signatures.  A '?' matches any input
	// byte, the same convention image.RegisterFormat uses.
	magics []string

	// decode is nil for formats that have no decoder available; such
	// formats are identified but validated by signature only.
	decode func(io.Reader) (image.Image, error)
}

var formatTable = map[Format]*formatInfo{
	FormatPNG: {
		name:       "png",
		ext:        "png",
		extensions: []string{"png"},
		magics:     []string{"\x89PNG\r\n\x1a\n"},
		decode:     png.Decode,
	},
	FormatJPEG: {
		name:       "jpeg",
		ext:        "jpg",
		extensions: []string{"jpg", "jpeg", "jpe", "jif", "jfif"},
		magics:     []string{"\xff\xd8\xff"},
		decode:     jpeg.Decode,
	},
	FormatGIF: {
		name:       "gif",
		ext:        "gif",
		extensions: []string{"gif"},
		magics:     []string{"GIF87a", "GIF89a"},
		decode:     gif.Decode,
	},
	FormatWebP: {
		name:       "webp",
		ext:        "webp",
		extensions: []string{"webp"},
		magics:     []string{"RIFF????WEBP"},
		decode:     webp.Decode,
	},
	FormatPNM: {
		name:       "pnm",
		ext:        "pbm",
		extensions: []string{"pbm", "pgm", "ppm", "pnm", "pam"},
		magics:     []string{"P1", "P2", "P3", "P4", "P5", "P6", "P7"},
	},
	FormatTIFF: {
		name:       "tiff",
		ext:        "tiff",
		extensions: []string{"tiff", "tif"},
		magics:     []string{"II\x2a\x00", "MM\x00\x2a"},
		decode:     tiff.Decode,
	},
	FormatTGA: {
		name:       "tga",
		ext:        "tga",
		extensions: []string{"tga"},
		// TGA has no file signature; identification is by extension only.
		magics: nil,
	},
	FormatDDS: {
		name:       "dds",
		ext:        "dds",
		extensions: []string{"dds"},
		magics:     []string{"DDS "},
	},
	FormatBMP: {
		name:       "bmp",
		ext:        "bmp",
		extensions: []string{"bmp"},
		magics:     []string{"BM"},
		decode:     bmp.Decode,
	},
	FormatICO: {
		name:       "ico",
		ext:        "ico",
		extensions: []string{"ico"},
		magics:     []string{"\x00\x00\x01\x00"},
	},
	FormatHDR: {
		name:       "hdr",
		ext:        "hdr",
		extensions: []string{"hdr"},
		magics:     []string{"#\x3fRADIANCE", "#\x3fRGBE"},
	},
	FormatOpenEXR: {
		name:       "openexr",
		ext:        "exr",
		extensions: []string{"exr"},
		magics:     []string{"v/1\x01"},
	},
	FormatFarbfeld: {
		name:       "farbfeld",
		ext:        "ff",
		extensions: []string{"ff", "farbfeld"},
		magics:     []string{"farbfeld"},
	},
	FormatAvif: {
		name:       "avif",
		ext:        "avif",
		extensions: []string{"avif"},
		magics:     []string{"????ftypavif"},
	},
	FormatQOI: {
		name:       "qoi",
		ext:        "qoi",
		extensions: []string{"qoi"},
		magics:     []string{"qoif"},
	},
}

// String returns the lower case format name.
func (f Format) String() string {
	if fi, ok := formatTable[f]; ok {
		return fi.name
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

// Extension returns the primary file extension for the format, without
// the leading dot.
func (f Format) Extension() string {
	if fi, ok := formatTable[f]; ok {
		return fi.ext
	}
	return "bin"
}

// Image is an encoded image payload.  The bytes are always kept in their
// original encoding; conversion only happens when saving as PNG.
type Image struct {
	Format Format
	Bytes  []byte
}

// LoadImage reads the file at path into a Data holding an image payload.
// The format is identified by sniffing the file signature, falling back
// to the file extension, and the bytes are verified to decode under the
// identified format where a decoder is available.
func LoadImage(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	format, ok := SniffFormat(b)
	if !ok {
		format, ok = FormatFromExtension(filepath.Ext(path))
	}
	if !ok {
		return nil, ErrUnknownImageFormat
	}

	img := &Image{Format: format, Bytes: b}
	if err = img.verify(); err != nil {
		return nil, err
	}
	return &Data{Image: img}, nil
}

// SniffFormat matches b against the known file signatures.
func SniffFormat(b []byte) (Format, bool) {
	for format := FormatPNG; format <= FormatQOI; format++ {
		for _, magic := range formatTable[format].magics {
			if matchMagic(b, magic) {
				return format, true
			}
		}
	}
	return 0, false
}

// FormatFromExtension maps a file extension, with or without the leading
// dot, to a format.
func FormatFromExtension(ext string) (Format, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for format := FormatPNG; format <= FormatQOI; format++ {
		for _, e := range formatTable[format].extensions {
			if e == ext {
				return format, true
			}
		}
	}
	return 0, false
}

// Save writes the original image bytes into dir under a UTC timestamped
// name carrying the format's primary extension.  The path written to is
// returned.
func (im *Image) Save(dir string) (string, error) {
	path := filepath.Join(dir, timestampName(im.Format.Extension()))
	if err := writeFile(path, im.Bytes); err != nil {
		return "", &SaveError{Path: path, Err: err}
	}
	return path, nil
}

// SaveAsPNG writes the image into dir re-encoded as PNG, under a UTC
// timestamped name.  A PNG image is written verbatim, byte for byte.
func (im *Image) SaveAsPNG(dir string) (string, error) {
	if im.Format == FormatPNG {
		return im.Save(dir)
	}

	decoded, err := im.Decode()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err = png.Encode(&buf, decoded); err != nil {
		return "", &ConvertError{Err: err}
	}

	path := filepath.Join(dir, timestampName(FormatPNG.Extension()))
	if err = writeFile(path, buf.Bytes()); err != nil {
		return "", &SaveError{Path: path, Err: err}
	}
	return path, nil
}

// Decode decodes the image bytes under the declared format.
func (im *Image) Decode() (image.Image, error) {
	fi, ok := formatTable[im.Format]
	if !ok || fi.decode == nil {
		return nil, &DecodeError{Format: im.Format, Err: errors.New("no decoder available")}
	}
	decoded, err := fi.decode(bytes.NewReader(im.Bytes))
	if err != nil {
		return nil, &DecodeError{Format: im.Format, Err: err}
	}
	return decoded, nil
}

// verify checks the invariant that the bytes really are what the format
// says they are.  Formats without a decoder are checked against their
// signature instead, except TGA which has none.
func (im *Image) verify() error {
	fi := formatTable[im.Format]
	if fi.decode != nil {
		_, err := im.Decode()
		return err
	}
	if len(fi.magics) == 0 {
		return nil
	}
	for _, magic := range fi.magics {
		if matchMagic(im.Bytes, magic) {
			return nil
		}
	}
	return &DecodeError{Format: im.Format, Err: errors.New("signature mismatch")}
}

func matchMagic(b []byte, magic string) bool {
	if len(b) < len(magic) {
		return false
	}
	for i := 0; i < len(magic); i++ {
		if magic[i] != '?' && b[i] != magic[i] {
			return false
		}
	}
	return true
}

func timestampName(ext string) string {
	return fmt.Sprintf("%s.%s", time.Now().UTC().Format(time.RFC3339), ext)
}
