// Package render defines the document templating surface the merge pipeline
// drives, plus a docx adapter. The engine substitutes record field values
// into a template's placeholders; image-typed values arrive as base64 data
// URIs and are swapped into the template's media parts.
package render

import (
	"bytes"
	"encoding/base64"
	"image"
	"regexp"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// Record is one normalized record: sanitized field names to display-formatted
// values.
type Record map[string]string

// Data is the tree merged into a template. Records render in order inside the
// template's page loop.
type Data struct {
	Records []Record
}

// MissingValuePolicy says what happens to placeholders with no matching field.
type MissingValuePolicy int

const (
	// MissingEmpty replaces unresolved placeholders with the empty string.
	MissingEmpty MissingValuePolicy = iota
	// MissingKeep leaves unresolved placeholders in the output.
	MissingKeep
)

// ImageOptions is the optional image-insertion extension: an encoded-image
// accessor plus a size resolver.
type ImageOptions struct {
	// GetImage decodes a field value into image bytes and a file extension.
	// ok is false when the value is not an encoded image.
	GetImage func(tagValue, tagName string) (img []byte, ext string, ok bool)
	// GetSize reports the pixel dimensions for an image.
	GetSize func(img []byte) (width, height int)
	// Width and Height force a fixed size; zero means resolve from the image.
	Width  int
	Height int
}

// Options configure one render call.
type Options struct {
	MissingValues MissingValuePolicy
	Images        *ImageOptions
}

// Engine renders a template binary against a data tree.
type Engine interface {
	Render(template []byte, data Data, opts Options) ([]byte, error)
}

// dataURIPattern matches the encoded-image convention produced by the image
// resolver.
var dataURIPattern = regexp.MustCompile(`^data:image/(png|jpe?g|gif|svg\+xml|svg);base64,`)

// DecodeDataURI unpacks a base64 image data URI. ok is false for anything
// that isn't one.
func DecodeDataURI(value string) (img []byte, ext string, ok bool) {
	m := dataURIPattern.FindString(value)
	if m == "" {
		return nil, "", false
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(m):])
	if err != nil {
		return nil, "", false
	}
	switch dataURIPattern.FindStringSubmatch(m)[1] {
	case "png":
		ext = "png"
	case "gif":
		ext = "gif"
	case "svg", "svg+xml":
		ext = "svg"
	default:
		ext = "jpeg"
	}
	return raw, ext, true
}

// SniffImageSize reads pixel dimensions from an encoded image, or zeros when
// the format isn't recognized.
func SniffImageSize(img []byte) (width, height int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

// DefaultImageOptions returns the standard extension: data-URI decoding and a
// size resolver that uses the fixed dimensions when set, else sniffs them
// from the image itself.
func DefaultImageOptions(width, height int) *ImageOptions {
	opts := &ImageOptions{
		GetImage: func(tagValue, _ string) ([]byte, string, bool) {
			return DecodeDataURI(tagValue)
		},
		Width:  width,
		Height: height,
	}
	opts.GetSize = func(img []byte) (int, int) {
		if opts.Width != 0 || opts.Height != 0 {
			return opts.Width, opts.Height
		}
		return SniffImageSize(img)
	}
	return opts
}
