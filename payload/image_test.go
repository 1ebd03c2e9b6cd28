// image_test.go - image payload tests.
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
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 0x80, A: 0xff})
		}
	}
	return img
}

func writeTestPNG(t *testing.T, dir string) (string, []byte) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage()))
	path := filepath.Join(dir, "test.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return path, buf.Bytes()
}

func writeTestJPEG(t *testing.T, dir string) string {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(), nil))
	path := filepath.Join(dir, "test.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
	return path
}

func TestLoadImagePNG(t *testing.T) {
	require := require.New(t)

	path, raw := writeTestPNG(t, t.TempDir())
	data, err := LoadImage(path)
	require.NoError(err)
	require.NotNil(data.Image)
	require.Equal(FormatPNG, data.Image.Format)
	require.Equal(raw, data.Image.Bytes)
}

func TestLoadImageSniffIgnoresExtension(t *testing.T) {
	require := require.New(t)

	// JPEG bytes behind a .png name; the signature wins.
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(jpeg.Encode(&buf, testImage(), nil))
	path := filepath.Join(dir, "lying.png")
	require.NoError(os.WriteFile(path, buf.Bytes(), 0600))

	data, err := LoadImage(path)
	require.NoError(err)
	require.Equal(FormatJPEG, data.Image.Format)
}

func TestLoadImageExtensionFallback(t *testing.T) {
	require := require.New(t)

	// TGA has no signature, so identification falls back to the
	// extension and the bytes pass as-is.
	dir := t.TempDir()
	path := filepath.Join(dir, "texture.tga")
	require.NoError(os.WriteFile(path, []byte{0, 0, 2, 0, 0, 0, 0, 0}, 0600))

	data, err := LoadImage(path)
	require.NoError(err)
	require.Equal(FormatTGA, data.Image.Format)
}

func TestLoadImageCorrupt(t *testing.T) {
	require := require.New(t)

	// A PNG signature followed by garbage must be rejected.
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.png")
	b := append([]byte("\x89PNG\r\n\x1a\n"), []byte("not a png at all")...)
	require.NoError(os.WriteFile(path, b, 0600))

	_, err := LoadImage(path)
	var dErr *DecodeError
	require.ErrorAs(err, &dErr)
}

func TestLoadImageUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mystery.dat")
	require.NoError(t, os.WriteFile(path, []byte("???"), 0600))

	_, err := LoadImage(path)
	require.ErrorIs(t, err, ErrUnknownImageFormat)
}

func TestSniffFormat(t *testing.T) {
	require := require.New(t)

	for _, tc := range []struct {
		b      []byte
		format Format
	}{
		{[]byte("GIF89a..."), FormatGIF},
		{[]byte("qoifXXXX"), FormatQOI},
		{[]byte("farbfeld"), FormatFarbfeld},
		{[]byte("RIFF\x01\x02\x03\x04WEBP"), FormatWebP},
		{[]byte("BMxxxx"), FormatBMP},
		{[]byte("II\x2a\x00xxxx"), FormatTIFF},
		{[]byte("\x00\x00\x01\x00img"), FormatICO},
		{[]byte("#?RADIANCE\n"), FormatHDR},
	} {
		format, ok := SniffFormat(tc.b)
		require.True(ok, "%q", tc.b)
		require.Equal(tc.format, format, "%q", tc.b)
	}

	_, ok := SniffFormat([]byte("plain text"))
	require.False(ok)
}

func TestFormatFromExtension(t *testing.T) {
	require := require.New(t)

	for ext, want := range map[string]Format{
		".png":  FormatPNG,
		"jpeg":  FormatJPEG,
		".JPG":  FormatJPEG,
		"tif":   FormatTIFF,
		".tga":  FormatTGA,
		".avif": FormatAvif,
	} {
		format, ok := FormatFromExtension(ext)
		require.True(ok, ext)
		require.Equal(want, format, ext)
	}

	_, ok := FormatFromExtension(".txt")
	require.False(ok)
}

func TestImageSave(t *testing.T) {
	require := require.New(t)

	srcPath, raw := writeTestPNG(t, t.TempDir())
	data, err := LoadImage(srcPath)
	require.NoError(err)

	outDir := t.TempDir()
	path, err := data.Image.Save(outDir)
	require.NoError(err)
	require.True(strings.HasSuffix(path, ".png"))
	require.True(strings.HasSuffix(filepath.Base(path), "Z.png"))

	got, err := os.ReadFile(path)
	require.NoError(err)
	require.Equal(raw, got)
}

func TestSaveAsPNGPassthrough(t *testing.T) {
	require := require.New(t)

	// Saving a PNG as PNG is byte-identical to a plain save.
	path, raw := writeTestPNG(t, t.TempDir())
	data, err := LoadImage(path)
	require.NoError(err)

	outDir := t.TempDir()
	outPath, err := data.Image.SaveAsPNG(outDir)
	require.NoError(err)
	got, err := os.ReadFile(outPath)
	require.NoError(err)
	require.Equal(raw, got)
}

func TestSaveAsPNGConverts(t *testing.T) {
	require := require.New(t)

	path := writeTestJPEG(t, t.TempDir())
	data, err := LoadImage(path)
	require.NoError(err)
	require.Equal(FormatJPEG, data.Image.Format)

	outDir := t.TempDir()
	outPath, err := data.Image.SaveAsPNG(outDir)
	require.NoError(err)
	require.True(strings.HasSuffix(outPath, ".png"))

	// The written PNG holds the same pixel grid the JPEG decodes to.
	pngBytes, err := os.ReadFile(outPath)
	require.NoError(err)
	converted, err := png.Decode(bytes.NewReader(pngBytes))
	require.NoError(err)

	original, err := data.Image.Decode()
	require.NoError(err)
	require.Equal(original.Bounds(), converted.Bounds())
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			or, og, ob, oa := original.At(x, y).RGBA()
			cr, cg, cb, ca := converted.At(x, y).RGBA()
			require.Equal([4]uint32{or, og, ob, oa}, [4]uint32{cr, cg, cb, ca})
		}
	}
}

func TestSaveNativeGIF(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	pal := image.NewPaletted(image.Rect(0, 0, 2, 2), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(gif.Encode(&buf, pal, nil))
	path := filepath.Join(dir, "anim.gif")
	require.NoError(os.WriteFile(path, buf.Bytes(), 0600))

	data, err := LoadImage(path)
	require.NoError(err)
	require.Equal(FormatGIF, data.Image.Format)

	outPath, err := data.Image.Save(t.TempDir())
	require.NoError(err)
	require.True(strings.HasSuffix(outPath, ".gif"))

	got, err := os.ReadFile(outPath)
	require.NoError(err)
	require.Equal(buf.Bytes(), got)
}
