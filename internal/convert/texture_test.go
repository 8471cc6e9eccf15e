package convert

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type texWriter struct {
	bytes.Buffer
}

func (w *texWriter) u32(v uint32) {
	binary.Write(&w.Buffer, binary.LittleEndian, v)
}

func (w *texWriter) magic(s string) {
	w.WriteString(s)
	w.WriteByte(0)
}

func buildTex(w, h uint32, pixels []byte, compress bool) []byte {
	var tw texWriter
	tw.magic("TEXV0005")
	tw.magic("TEXI0001")
	tw.u32(0) // format: RGBA8888
	tw.u32(0)
	tw.u32(w)
	tw.u32(h)
	tw.u32(w)
	tw.u32(h)
	tw.u32(0)
	tw.magic("TEXB0003")
	tw.u32(1) // image count
	tw.u32(0)
	tw.u32(1) // mip count
	tw.u32(w)
	tw.u32(h)

	data := pixels
	if compress {
		dst := make([]byte, lz4.CompressBlockBound(len(pixels)))
		n, err := lz4.CompressBlock(pixels, dst, nil)
		if err != nil || n == 0 {
			panic("pixels did not compress")
		}
		data = dst[:n]
		tw.u32(1)
	} else {
		tw.u32(0)
	}
	tw.u32(uint32(len(pixels)))
	tw.u32(uint32(len(data)))
	tw.Write(data)
	return tw.Bytes()
}

func solidPixels(w, h int, c color.RGBA) []byte {
	pix := make([]byte, 0, w*h*4)
	for i := 0; i < w*h; i++ {
		pix = append(pix, c.R, c.G, c.B, c.A)
	}
	return pix
}

func TestDecodeImagePNG(t *testing.T) {
	img, err := DecodeImage(pngBytes(t, 3, 2, color.RGBA{10, 20, 30, 255}))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.RGBAAt(2, 1))
}

func TestDecodeImageRejectsGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeTexRaw(t *testing.T) {
	pix := solidPixels(4, 4, color.RGBA{1, 2, 3, 4})
	img, err := DecodeImage(buildTex(4, 4, pix, false))
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	assert.Equal(t, color.RGBA{1, 2, 3, 4}, img.RGBAAt(3, 3))
}

func TestDecodeTexLZ4(t *testing.T) {
	pix := solidPixels(16, 16, color.RGBA{200, 100, 50, 255})
	img, err := DecodeImage(buildTex(16, 16, pix, true))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, img.RGBAAt(7, 9))
}

func TestDecodeTexBadMagic(t *testing.T) {
	data := buildTex(1, 1, []byte{0, 0, 0, 0}, false)
	copy(data, "TEXV0004")
	_, err := DecodeTex(bytes.NewReader(data))
	assert.ErrorContains(t, err, "invalid magic")
}

func TestDecodeTexRejectsOversizedMip(t *testing.T) {
	// 32768*32768*4 wraps to zero in 32 bits, matching the empty payload.
	_, err := DecodeImage(buildTex(32768, 32768, nil, false))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeTexRejectsShortPayload(t *testing.T) {
	_, err := DecodeImage(buildTex(16, 16, make([]byte, 5), false))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = DecodeImage(buildTex(0, 4, nil, false))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDecodeTexRejectsOversizedClaim(t *testing.T) {
	data := buildTex(2, 2, solidPixels(2, 2, color.RGBA{A: 255}), false)
	// Patch the stored data size, the last header word before the payload.
	binary.LittleEndian.PutUint32(data[len(data)-16-4:], 1<<30)
	_, err := DecodeImage(data)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestToRGBANormalizesSubImage(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src.SetRGBA(2, 2, color.RGBA{9, 9, 9, 255})
	sub := src.SubImage(image.Rect(2, 2, 4, 4))

	out := ToRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, color.RGBA{9, 9, 9, 255}, out.RGBAAt(0, 0))
}

func writePkg(t *testing.T, files map[string][]byte, order []string) string {
	t.Helper()
	var header, body bytes.Buffer
	putString := func(s string) {
		binary.Write(&header, binary.LittleEndian, uint32(len(s)))
		header.WriteString(s)
	}
	putString("PKGV0019")
	binary.Write(&header, binary.LittleEndian, uint32(len(order)))
	for _, name := range order {
		putString(name)
		binary.Write(&header, binary.LittleEndian, uint32(body.Len()))
		binary.Write(&header, binary.LittleEndian, uint32(len(files[name])))
		body.Write(files[name])
	}

	path := filepath.Join(t.TempDir(), "scene.pkg")
	require.NoError(t, os.WriteFile(path, append(header.Bytes(), body.Bytes()...), 0o644))
	return path
}

func TestPkgReadFile(t *testing.T) {
	grain := pngBytes(t, 2, 2, color.RGBA{5, 6, 7, 255})
	path := writePkg(t, map[string][]byte{
		"scene.json":          []byte(`{}`),
		"materials/grain.png": grain,
	}, []string{"scene.json", "materials/grain.png"})

	pkg, err := OpenPkg(path)
	require.NoError(t, err)
	assert.Equal(t, "PKGV0019", pkg.Version)
	require.Len(t, pkg.Entries, 2)

	data, err := pkg.ReadFile("materials\\grain.png")
	require.NoError(t, err)
	assert.Equal(t, grain, data)

	_, err = pkg.ReadFile("missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplitPkgSource(t *testing.T) {
	archive, entry, ok := SplitPkgSource("wall/scene.pkg:materials/grain.tex")
	require.True(t, ok)
	assert.Equal(t, "wall/scene.pkg", archive)
	assert.Equal(t, "materials/grain.tex", entry)

	_, _, ok = SplitPkgSource("assets/grain.png")
	assert.False(t, ok)
}
