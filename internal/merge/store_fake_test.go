package merge

import (
	"context"
	"fmt"
	"sync"
)

// fakeStore is an in-memory Store recording every call.
type fakeStore struct {
	mu sync.Mutex

	view *View

	// files maps "viewID/recordID/field" to a fetchable file; missing keys
	// come back as not-found.
	files     map[string]*File
	fileErrs  map[string]error
	fileGets  map[string]int
	updates   []updateCall
	updateErr error
	added     []addCall
	addErr    error
	attached  []attachCall
	attachErr error

	nextID int64
}

type updateCall struct {
	ViewID   int
	RecordID int64
	Fields   map[string]any
}

type addCall struct {
	ViewID int
	Fields map[string]any
	ID     int64
}

type attachCall struct {
	ViewID   int
	RecordID int64
	Field    string
	Filename string
	Contents []byte
}

type fakeNotFound struct{ key string }

func (e *fakeNotFound) Error() string  { return "not found: " + e.key }
func (e *fakeNotFound) NotFound() bool { return true }

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:    map[string]*File{},
		fileErrs: map[string]error{},
		fileGets: map[string]int{},
		nextID:   1000,
	}
}

func fileKey(viewID int, recordID int64, field string) string {
	return fmt.Sprintf("%d/%d/%s", viewID, recordID, field)
}

func (f *fakeStore) GetView(_ context.Context, viewID int, _ *Paging) (*View, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.view == nil {
		return &View{}, nil
	}
	return f.view, nil
}

func (f *fakeStore) GetFile(_ context.Context, viewID int, recordID int64, field string, _ *FileOptions) (*File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fileKey(viewID, recordID, field)
	f.fileGets[key]++
	if err, ok := f.fileErrs[key]; ok {
		return nil, err
	}
	file, ok := f.files[key]
	if !ok {
		return nil, &fakeNotFound{key: key}
	}
	return file, nil
}

func (f *fakeStore) UpdateRecord(_ context.Context, viewID int, recordID int64, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, updateCall{ViewID: viewID, RecordID: recordID, Fields: fields})
	return nil
}

func (f *fakeStore) AddRecord(_ context.Context, viewID int, fields map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return 0, f.addErr
	}
	f.nextID++
	f.added = append(f.added, addCall{ViewID: viewID, Fields: fields, ID: f.nextID})
	return f.nextID, nil
}

func (f *fakeStore) AttachFile(_ context.Context, viewID int, recordID int64, field, filename string, contents []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, attachCall{ViewID: viewID, RecordID: recordID, Field: field, Filename: filename, Contents: contents})
	return nil
}
