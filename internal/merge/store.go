package merge

import (
	"context"
	"errors"
)

// Paging bounds a view fetch.
type Paging struct {
	Start int
	Max   int
}

// View is one page of view data plus the field schema for the view.
type View struct {
	Data       []Record
	Structure  []FieldSchema
	TotalCount int
}

// File is a binary field download plus the transport metadata the pipeline
// reads from it.
type File struct {
	Body               []byte
	ContentType        string
	ContentDisposition string
}

// FileOptions constrain an image download. Width and MaxDimension are
// mutually exclusive.
type FileOptions struct {
	Width        int
	MaxDimension int
}

// Store is the record-store surface the pipeline consumes. The concrete
// implementation lives in internal/trackvia.
type Store interface {
	GetView(ctx context.Context, viewID int, paging *Paging) (*View, error)
	GetFile(ctx context.Context, viewID int, recordID int64, field string, opts *FileOptions) (*File, error)
	UpdateRecord(ctx context.Context, viewID int, recordID int64, fields map[string]any) error
	AddRecord(ctx context.Context, viewID int, fields map[string]any) (int64, error)
	AttachFile(ctx context.Context, viewID int, recordID int64, field, filename string, contents []byte) error
}

// IsNotFound reports whether err marks a distinguishable "no such file/record"
// store response, as opposed to a transport or auth failure. Store errors opt
// in by implementing NotFound() bool.
func IsNotFound(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}
