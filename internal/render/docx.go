package render

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"
)

// Placeholder markers bounding the record loop inside a template body. The
// region between them renders once per record.
const (
	loopOpen  = "{#page}"
	loopClose = "{/page}"
)

// tagPattern matches a template placeholder: {Field_Name} for text,
// {%Field_Name} for images. Placeholders the word processor split across XML
// runs don't match and are left as-is.
var tagPattern = regexp.MustCompile(`\{(%?)([^{}<>%]+)\}`)

// DocxEngine renders .docx templates by placeholder substitution.
type DocxEngine struct {
	log *zap.Logger
}

// NewDocxEngine returns a docx templating engine.
func NewDocxEngine(log *zap.Logger) *DocxEngine {
	return &DocxEngine{log: log}
}

// imageTag is one image placeholder occurrence, in document order.
type imageTag struct {
	Name  string
	Value string
}

// Render merges the data tree into the template and returns the finished
// document binary.
func (e *DocxEngine) Render(template []byte, data Data, opts Options) ([]byte, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(template), int64(len(template)))
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	defer r.Close()

	doc := r.Editable()
	content, images := e.expand(doc.GetContent(), data.Records, opts)
	doc.SetContent(content)

	if err := e.insertImages(doc, images, opts); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing document: %w", err)
	}
	return buf.Bytes(), nil
}

// expand renders the page loop once per record and substitutes placeholders.
// Image placeholders are blanked in the text and collected for media
// insertion, preserving document order.
func (e *DocxEngine) expand(content string, records []Record, opts Options) (string, []imageTag) {
	var images []imageTag

	open := strings.Index(content, loopOpen)
	end := strings.Index(content, loopClose)
	if open < 0 || end < open {
		// No record loop: merge the first record over the whole body.
		if len(records) > 1 {
			e.log.Warn("template has no page loop; merging first record only",
				zap.Int("records", len(records)))
		}
		var rec Record
		if len(records) > 0 {
			rec = records[0]
		}
		return substitute(content, rec, opts, &images), images
	}

	prefix := content[:open]
	body := content[open+len(loopOpen) : end]
	suffix := content[end+len(loopClose):]

	var b strings.Builder
	b.WriteString(substitute(prefix, nil, opts, &images))
	for _, rec := range records {
		b.WriteString(substitute(body, rec, opts, &images))
	}
	b.WriteString(substitute(suffix, nil, opts, &images))
	return b.String(), images
}

// substitute replaces every placeholder in region from rec, honoring the
// missing-value policy.
func substitute(region string, rec Record, opts Options, images *[]imageTag) string {
	return tagPattern.ReplaceAllStringFunc(region, func(m string) string {
		sub := tagPattern.FindStringSubmatch(m)
		isImage, name := sub[1] == "%", sub[2]

		value, ok := rec[name]
		if !ok || value == "" {
			if opts.MissingValues == MissingKeep {
				return m
			}
			return ""
		}
		if isImage || strings.HasPrefix(value, "data:image/") {
			*images = append(*images, imageTag{Name: name, Value: value})
			return ""
		}
		return escapeValue(value)
	})
}

// xmlEscaper covers the five characters document XML can't carry literally.
var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&#34;",
	"'", "&#39;",
)

// escapeValue makes a field value safe for the document body. Newlines become
// run breaks so multi-line values lay out the way users typed them.
func escapeValue(value string) string {
	escaped := xmlEscaper.Replace(value)
	escaped = strings.ReplaceAll(escaped, "\r\n", "\n")
	return strings.ReplaceAll(escaped, "\n", "</w:t><w:br/><w:t>")
}

// mediaExtensions are probed in order when swapping an image into the
// template's media parts.
var mediaExtensions = []string{"png", "jpeg", "jpg", "gif"}

// insertImages decodes each collected image tag and swaps it into the
// template's media slots in order: the Nth image placeholder replaces the
// template's word/media/imageN.* part.
func (e *DocxEngine) insertImages(doc *docx.Docx, images []imageTag, opts Options) error {
	if len(images) == 0 {
		return nil
	}
	imgOpts := opts.Images
	if imgOpts == nil {
		imgOpts = DefaultImageOptions(0, 0)
	}

	for i, tag := range images {
		raw, ext, ok := imgOpts.GetImage(tag.Value, tag.Name)
		if !ok {
			e.log.Warn("image placeholder value is not an encoded image; skipping",
				zap.String("tag", tag.Name))
			continue
		}
		width, height := imgOpts.GetSize(raw)

		tmp, err := os.CreateTemp("", "docxmerge-img-*."+ext)
		if err != nil {
			return fmt.Errorf("staging image %q: %w", tag.Name, err)
		}
		if _, err := tmp.Write(raw); err != nil {
			tmp.Close()
			return fmt.Errorf("staging image %q: %w", tag.Name, err)
		}
		tmp.Close()
		defer os.Remove(tmp.Name())

		if err := replaceMedia(doc, i+1, ext, tmp.Name()); err != nil {
			e.log.Warn("template has no media slot for image placeholder",
				zap.String("tag", tag.Name),
				zap.Int("slot", i+1),
				zap.Error(err))
			continue
		}
		e.log.Debug("inserted image",
			zap.String("tag", tag.Name),
			zap.Int("slot", i+1),
			zap.Int("width", width),
			zap.Int("height", height))
	}
	return nil
}

// replaceMedia swaps template media part imageN, probing the known
// extensions since the placeholder image's format need not match the
// record's.
func replaceMedia(doc *docx.Docx, slot int, ext string, path string) error {
	tried := []string{ext}
	for _, e := range mediaExtensions {
		if e != ext {
			tried = append(tried, e)
		}
	}
	var lastErr error
	for _, e := range tried {
		if err := doc.ReplaceImage(fmt.Sprintf("word/media/image%d.%s", slot, e), path); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
