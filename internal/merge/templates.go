package merge

import (
	"context"
	"fmt"
	"mime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultTemplateName is used when the transport metadata carries no usable
// filename.
const DefaultTemplateName = "template.docx"

// TemplateBundle is one fetched template binary plus its display filename.
// Immutable once fetched; discarded at end of run.
type TemplateBundle struct {
	ID       int64
	Contents []byte
	Name     string
}

// fetchConcurrency bounds the template download fan-out.
const fetchConcurrency = 4

// TemplateFetcher downloads template binaries from the template view.
type TemplateFetcher struct {
	store  Store
	viewID int
	field  string
	log    *zap.Logger
}

// NewTemplateFetcher returns a fetcher reading the given document field of the
// template view.
func NewTemplateFetcher(store Store, viewID int, field string, log *zap.Logger) *TemplateFetcher {
	return &TemplateFetcher{store: store, viewID: viewID, field: field, log: log}
}

// Fetch downloads each distinct template exactly once, no matter how many
// records reference it. Keys fan out concurrently; a failure for one key is
// recorded against that key only, so groups on other templates can still
// merge. The returned maps are keyed by template id: one of bundle or error
// per requested key.
func (tf *TemplateFetcher) Fetch(ctx context.Context, templateIDs []int64) (map[int64]*TemplateBundle, map[int64]error) {
	bundles := make(map[int64]*TemplateBundle, len(templateIDs))
	failures := make(map[int64]error)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(fetchConcurrency)
	for _, id := range templateIDs {
		id := id
		g.Go(func() error {
			file, err := tf.store.GetFile(ctx, tf.viewID, id, tf.field, nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[id] = fmt.Errorf("fetching template %d: %w", id, err)
				return nil
			}
			name := TemplateFilename(file.ContentDisposition)
			tf.log.Debug("fetched template",
				zap.Int64("template_id", id),
				zap.String("name", name),
				zap.Int("bytes", len(file.Body)))
			bundles[id] = &TemplateBundle{ID: id, Contents: file.Body, Name: name}
			return nil
		})
	}
	_ = g.Wait()
	return bundles, failures
}

// TemplateFilename extracts the display filename from a Content-Disposition
// header value, falling back to DefaultTemplateName when the header is
// absent or unparsable.
func TemplateFilename(disposition string) string {
	if disposition == "" {
		return DefaultTemplateName
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return DefaultTemplateName
	}
	return params["filename"]
}
