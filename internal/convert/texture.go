package convert

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"feedbackwarp/internal/utils"

	"github.com/h2non/filetype"
	"github.com/mauserzjeh/dxt"
	"github.com/pierrec/lz4/v4"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const texMagic = "TEXV0005"

// maxTexDimension bounds mip sizes read from untrusted headers.
const maxTexDimension = 16384

var ErrUnsupportedFormat = errors.New("unsupported image format")

// DecodeImage decodes any supported texture source into tightly packed RGBA8.
// Wallpaper Engine .tex containers are detected by magic, everything else is
// sniffed and handed to the registered image decoders.
func DecodeImage(data []byte) (*image.RGBA, error) {
	if bytes.HasPrefix(data, []byte(texMagic)) {
		img, err := DecodeTex(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return ToRGBA(img), nil
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return nil, fmt.Errorf("sniff image: %w", err)
	}
	if kind == filetype.Unknown || !filetype.IsImage(data) {
		return nil, fmt.Errorf("%w: %d bytes of unknown content", ErrUnsupportedFormat, len(data))
	}
	utils.Debug("Texture: decoding %s (%s)", kind.Extension, kind.MIME.Value)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind.Extension, err)
	}
	return ToRGBA(img), nil
}

// ToRGBA returns img as an *image.RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) && rgba.Stride == rgba.Rect.Dx()*4 {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}

func readUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, binary.LittleEndian, &v)
	return v, err
}

func readString(r io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(bytes.Trim(b, "\x00")), nil
}

type texReader struct {
	r   io.ReadSeeker
	err error
}

func (t *texReader) u32() uint32 {
	if t.err != nil {
		return 0
	}
	var v uint32
	v, t.err = readUint32(t.r)
	return v
}

func (t *texReader) str(n int) string {
	if t.err != nil {
		return ""
	}
	var s string
	s, t.err = readString(t.r, n)
	return s
}

func (t *texReader) skip(n int64) {
	if t.err != nil {
		return
	}
	_, t.err = t.r.Seek(n, io.SeekCurrent)
}

// DecodeTex decodes the first mip of the first image in a TEXV0005 container.
func DecodeTex(r io.ReadSeeker) (image.Image, error) {
	t := &texReader{r: r}

	magic := t.str(8)
	t.skip(1)
	_ = t.str(8)
	t.skip(1)
	if t.err != nil {
		return nil, fmt.Errorf("read tex header: %w", t.err)
	}
	if magic != texMagic {
		return nil, fmt.Errorf("invalid magic: %s", magic)
	}

	format := t.u32()
	t.skip(4)
	_ = t.u32()
	_ = t.u32()
	imgW := t.u32()
	imgH := t.u32()
	_ = t.u32()

	containerMagic := t.str(8)
	t.skip(1)
	imageCount := t.u32()
	if containerMagic == "TEXB0003" {
		_ = t.u32()
	}
	if t.err != nil {
		return nil, fmt.Errorf("read tex container: %w", t.err)
	}

	utils.Debug("Texture: tex format %d, size %dx%d, container %s", format, imgW, imgH, containerMagic)

	if imageCount == 0 {
		return nil, errors.New("no image found in texture")
	}

	mipmapCount := t.u32()
	if t.err != nil || mipmapCount == 0 {
		return nil, errors.New("no mipmap found in texture")
	}

	mW := t.u32()
	mH := t.u32()
	var isLZ4 bool
	var decompressedSize uint32
	if containerMagic != "TEXB0001" {
		isLZ4 = t.u32() == 1
		decompressedSize = t.u32()
	}
	dataSize := t.u32()
	if t.err != nil {
		return nil, fmt.Errorf("read mip header: %w", t.err)
	}

	if mW == 0 || mH == 0 || mW > maxTexDimension || mH > maxTexDimension {
		return nil, fmt.Errorf("%w: tex mip size %dx%d", ErrUnsupportedFormat, mW, mH)
	}
	maxBytes := uint64(mW) * uint64(mH) * 4
	if uint64(dataSize) > maxBytes || uint64(decompressedSize) > maxBytes {
		return nil, fmt.Errorf("%w: tex mip of %dx%d claims %d bytes", ErrUnsupportedFormat, mW, mH, max(dataSize, decompressedSize))
	}

	data := make([]byte, dataSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read mip data: %w", err)
	}

	if isLZ4 {
		utils.Debug("Texture: decompressing LZ4 %d -> %d", dataSize, decompressedSize)
		decoded := make([]byte, decompressedSize)
		n, err := lz4.UncompressBlock(data, decoded)
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		data = decoded[:n]
	}

	pix, err := decodeMip(data, format, mW, mH)
	if err != nil {
		return nil, err
	}

	rgba := &image.RGBA{
		Pix:    pix,
		Stride: int(mW) * 4,
		Rect:   image.Rect(0, 0, int(mW), int(mH)),
	}
	if imgW > 0 && imgH > 0 && imgW <= mW && imgH <= mH {
		return rgba.SubImage(image.Rect(0, 0, int(imgW), int(imgH))), nil
	}
	return rgba, nil
}

// decodeMip expands one mip to RGBA8. w and h must already be bounded by
// maxTexDimension.
func decodeMip(data []byte, format, w, h uint32) ([]byte, error) {
	pixels := int(w) * int(h)
	blocks := int((w+3)/4) * int((h+3)/4)
	size := len(data)

	var pix []byte
	var err error
	switch {
	case size == pixels*4:
		pix = data
	case size == blocks*16 || (format == 6 && size > blocks*16):
		pix, err = dxt.DecodeDXT5(data[:blocks*16], uint(w), uint(h))
	case size == blocks*8 || ((format == 4 || format == 7) && size > blocks*8):
		pix, err = dxt.DecodeDXT1(data[:blocks*8], uint(w), uint(h))
	case format == 9 && size == pixels:
		pix = make([]byte, pixels*4)
		for i := 0; i < pixels; i++ {
			v := data[i]
			pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = v, v, v, 255
		}
	case format == 8 && size == pixels*2:
		pix = make([]byte, pixels*4)
		for i := 0; i < pixels; i++ {
			lum := data[i*2+1]
			pix[i*4], pix[i*4+1], pix[i*4+2], pix[i*4+3] = lum, lum, lum, lum
		}
	default:
		return nil, fmt.Errorf("%w: tex format %d with %d bytes for %dx%d", ErrUnsupportedFormat, format, size, w, h)
	}
	if err != nil {
		return nil, fmt.Errorf("dxt: %w", err)
	}
	if len(pix) != pixels*4 {
		return nil, fmt.Errorf("%w: tex mip decoded to %d bytes, want %d", ErrUnsupportedFormat, len(pix), pixels*4)
	}
	return pix, nil
}
