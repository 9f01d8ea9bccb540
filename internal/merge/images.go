package merge

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// ImageOutcome records what happened to one image field on one record.
type ImageOutcome struct {
	RecordID int64
	Field    string
	Skipped  bool // the store had no file for this field
}

// ImageResolver inlines image-field binaries into records as data URIs the
// templating engine's image extension can decode.
type ImageResolver struct {
	store  Store
	viewID int
	log    *zap.Logger
}

// NewImageResolver returns a resolver fetching from the given view.
func NewImageResolver(store Store, viewID int, log *zap.Logger) *ImageResolver {
	return &ImageResolver{store: store, viewID: viewID, log: log}
}

// Resolve fetches every declared image field of every record and replaces the
// field's value with an encoded data URI. Fields are fetched sequentially per
// record: an absent image legitimately comes back as not-found, and sequential
// handling keeps failure attribution per field unambiguous. Not-found is a
// recorded, non-fatal outcome; any other store failure aborts.
//
// Records are mutated in place. The returned outcomes preserve record and
// field order.
func (ir *ImageResolver) Resolve(ctx context.Context, records []Record, fields []string) ([]ImageOutcome, error) {
	var outcomes []ImageOutcome
	for _, rec := range records {
		for _, field := range fields {
			file, err := ir.store.GetFile(ctx, ir.viewID, rec.ID(), field, nil)
			if err != nil {
				if IsNotFound(err) {
					ir.log.Debug("no image for field, skipping",
						zap.Int64("record_id", rec.ID()),
						zap.String("field", field))
					outcomes = append(outcomes, ImageOutcome{RecordID: rec.ID(), Field: field, Skipped: true})
					continue
				}
				return outcomes, fmt.Errorf("fetching image field %q for record %d: %w", field, rec.ID(), err)
			}
			rec[field] = StringValue(EncodeImage(file))
			outcomes = append(outcomes, ImageOutcome{RecordID: rec.ID(), Field: field})
		}
	}
	return outcomes, nil
}

// EncodeImage packs a downloaded binary into a data URI carrying its content
// type, sniffing the body when the transport didn't declare one.
func EncodeImage(file *File) string {
	contentType := file.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(file.Body)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(file.Body)
}
