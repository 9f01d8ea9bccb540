package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes encodes a solid test image of the given dimensions.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(mediaType string, raw []byte) string {
	return "data:image/" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeDataURI(t *testing.T) {
	raw := []byte("image-bytes")

	tests := []struct {
		name      string
		value     string
		wantOK    bool
		wantExt   string
		wantBytes []byte
	}{
		{"png", dataURI("png", raw), true, "png", raw},
		{"jpeg", dataURI("jpeg", raw), true, "jpeg", raw},
		{"jpg", dataURI("jpg", raw), true, "jpeg", raw},
		{"gif", dataURI("gif", raw), true, "gif", raw},
		{"svg", dataURI("svg+xml", raw), true, "svg", raw},
		{"bare svg", dataURI("svg", raw), true, "svg", raw},
		{"plain text", "just a value", false, "", nil},
		{"other scheme", "data:text/plain;base64,aGk=", false, "", nil},
		{"bad base64", "data:image/png;base64,!!!!", false, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, ext, ok := DecodeDataURI(tt.value)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantExt, ext)
			assert.Equal(t, tt.wantBytes, img)
		})
	}
}

func TestSniffImageSize(t *testing.T) {
	width, height := SniffImageSize(pngBytes(t, 40, 25))
	assert.Equal(t, 40, width)
	assert.Equal(t, 25, height)

	width, height = SniffImageSize([]byte("not an image"))
	assert.Zero(t, width)
	assert.Zero(t, height)
}

func TestDefaultImageOptions(t *testing.T) {
	img := pngBytes(t, 40, 25)

	fixed := DefaultImageOptions(120, 80)
	w, h := fixed.GetSize(img)
	assert.Equal(t, 120, w)
	assert.Equal(t, 80, h)

	sniffed := DefaultImageOptions(0, 0)
	w, h = sniffed.GetSize(img)
	assert.Equal(t, 40, w)
	assert.Equal(t, 25, h)

	raw, ext, ok := fixed.GetImage(dataURI("png", img), "Photo")
	require.True(t, ok)
	assert.Equal(t, "png", ext)
	assert.Equal(t, img, raw)

	_, _, ok = fixed.GetImage("plain text", "Photo")
	assert.False(t, ok)
}
