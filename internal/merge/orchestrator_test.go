package merge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"docxmerge/internal/render"
)

// fakeEngine records every render call and returns a canned document.
type fakeEngine struct {
	mu    sync.Mutex
	calls []render.Data
	err   error
}

func (e *fakeEngine) Render(template []byte, data render.Data, _ render.Options) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.calls = append(e.calls, data)
	return append([]byte("rendered:"), template...), nil
}

func testSettings(t *testing.T) Settings {
	return Settings{
		SourceViewID:      1,
		TemplateLinkField: "Template",
		RecordIDField:     "Record ID",
		LastUserField:     "Last User",
		TemplateViewID:    50,
		TemplateDocField:  "Template File",
		DestinationViewID: 60,
		DestDocumentField: "Merged Document",
		DestDetailsField:  "Details",
		DestTemplateField: "Template",
		DestMergeUser:     "Merge User",
		StagingDir:        t.TempDir(),
	}
}

func sourceStructure() []FieldSchema {
	return []FieldSchema{
		{Name: "Record ID", Type: TypeText},
		{Name: "Name", Type: TypeText},
		{Name: "Template", Type: "relationship"},
	}
}

func sourceRecord(id int64, recordID, name string, templateID int64) Record {
	rec := Record{
		"id":        NumberValue(float64(id)),
		"Record ID": StringValue(recordID),
		"Name":      StringValue(name),
	}
	if templateID != 0 {
		rec["Template"] = StringValue("T")
		rec["Template(id)"] = NumberValue(float64(templateID))
	}
	rec["Last User(id)"] = NumberValue(77)
	return rec
}

func TestOrchestratorRun(t *testing.T) {
	store := newFakeStore()
	store.view = &View{
		Data: []Record{
			sourceRecord(1, "R-1", "Ada", 10),
			sourceRecord(2, "R-2", "Grace", 10),
			sourceRecord(3, "R-3", "Edsger", 20),
			sourceRecord(4, "R-4", "Tony", 0), // no template link
		},
		Structure: sourceStructure(),
	}
	store.files[fileKey(50, 10, "Template File")] = &File{
		Body:               []byte("tpl-10"),
		ContentDisposition: `attachment; filename="offer.docx"`,
	}
	store.files[fileKey(50, 20, "Template File")] = &File{Body: []byte("tpl-20")}

	engine := &fakeEngine{}
	orch := NewOrchestrator(store, engine, testSettings(t), zaptest.NewLogger(t))

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Empty())
	assert.Equal(t, 4, result.RecordCount)
	assert.Empty(t, result.Failed())

	// One fetch per distinct template, even with two records on template 10.
	assert.Equal(t, 1, store.fileGets[fileKey(50, 10, "Template File")])
	assert.Equal(t, 1, store.fileGets[fileKey(50, 20, "Template File")])

	// Two rendered documents, two destination records, two attachments.
	assert.Len(t, engine.calls, 2)
	assert.Len(t, store.added, 2)
	assert.Len(t, store.attached, 2)

	// Every fetched record got its link cleared, including the unlinked one.
	assert.Len(t, store.updates, 4)

	require.Len(t, result.Groups, 2)
	first := result.Groups[0]
	assert.Equal(t, int64(10), first.TemplateID)
	assert.Equal(t, "offer.docx", first.TemplateName)
	// Note text lists identifiers in original fetch order.
	assert.Equal(t, []string{"R-1", "R-2"}, first.RecordIDs)
	assert.NotZero(t, first.DestinationRecordID)
	assert.NotEmpty(t, first.StagedPath)

	second := result.Groups[1]
	assert.Equal(t, int64(20), second.TemplateID)
	assert.Equal(t, []string{"R-3"}, second.RecordIDs)

	// Destination bookkeeping fields.
	for _, call := range store.added {
		assert.Equal(t, 60, call.ViewID)
		assert.Contains(t, call.Fields, "Details")
		assert.Contains(t, call.Fields, "Template")
		assert.EqualValues(t, 77, call.Fields["Merge User"])
	}
	// The T1 group merged two records.
	var t1Details string
	for _, call := range store.added {
		if call.Fields["Template"] == int64(10) {
			t1Details, _ = call.Fields["Details"].(string)
		}
	}
	assert.Equal(t, "Merged 2 records:\nR-1\nR-2", t1Details)

	// Attachments carry the rendered bytes and a timestamped filename.
	for _, att := range store.attached {
		assert.Equal(t, "Merged Document", att.Field)
		assert.Contains(t, string(att.Contents), "rendered:tpl-")
		assert.Contains(t, att.Filename, "_")
	}
}

func TestOrchestratorEmptyView(t *testing.T) {
	store := newFakeStore()
	engine := &fakeEngine{}
	orch := NewOrchestrator(store, engine, testSettings(t), zaptest.NewLogger(t))

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, "no records to merge", result.Summary())

	// Zero store writes of any kind.
	assert.Empty(t, store.updates)
	assert.Empty(t, store.added)
	assert.Empty(t, store.attached)
	assert.Empty(t, engine.calls)
}

func TestOrchestratorImageNotFoundIsNonFatal(t *testing.T) {
	structure := append(sourceStructure(), FieldSchema{Name: "Photo", Type: TypeImage})
	store := newFakeStore()
	store.view = &View{
		Data:      []Record{sourceRecord(1, "R-1", "Ada", 10)},
		Structure: structure,
	}
	// No photo on file for record 1; template still fetches fine.
	store.files[fileKey(50, 10, "Template File")] = &File{Body: []byte("tpl-10")}

	engine := &fakeEngine{}
	orch := NewOrchestrator(store, engine, testSettings(t), zaptest.NewLogger(t))

	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Failed())
	assert.Equal(t, 1, result.SkippedImages)

	// The field stays empty in the rendered data.
	require.Len(t, engine.calls, 1)
	assert.Equal(t, "", engine.calls[0].Records[0]["Photo"])
}

func TestOrchestratorTemplateFailureIsolatedPerGroup(t *testing.T) {
	store := newFakeStore()
	store.view = &View{
		Data: []Record{
			sourceRecord(1, "R-1", "Ada", 10),
			sourceRecord(2, "R-2", "Grace", 20),
		},
		Structure: sourceStructure(),
	}
	store.files[fileKey(50, 10, "Template File")] = &File{Body: []byte("tpl-10")}
	store.fileErrs[fileKey(50, 20, "Template File")] = errors.New("store exploded")

	engine := &fakeEngine{}
	orch := NewOrchestrator(store, engine, testSettings(t), zaptest.NewLogger(t))

	result, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Failed(), 1)
	assert.Equal(t, int64(20), result.Failed()[0].TemplateID)

	// The healthy group still merged and filed.
	assert.Len(t, store.added, 1)
	assert.Len(t, store.attached, 1)
}

func TestOrchestratorConfigMismatch(t *testing.T) {
	store := newFakeStore()
	store.view = &View{
		Data:      []Record{sourceRecord(1, "R-1", "Ada", 10)},
		Structure: []FieldSchema{{Name: "Name", Type: TypeText}}, // no Template field
	}

	orch := NewOrchestrator(store, &fakeEngine{}, testSettings(t), zaptest.NewLogger(t))
	_, err := orch.Run(context.Background())
	require.Error(t, err)

	var mismatch *ConfigMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "source.template_link_field", mismatch.Key)
	assert.Equal(t, "Template", mismatch.Field)
}

func TestOrchestratorAttachFailureLeavesOrphan(t *testing.T) {
	store := newFakeStore()
	store.view = &View{
		Data:      []Record{sourceRecord(1, "R-1", "Ada", 10)},
		Structure: sourceStructure(),
	}
	store.files[fileKey(50, 10, "Template File")] = &File{Body: []byte("tpl-10")}
	store.attachErr = errors.New("upload rejected")

	orch := NewOrchestrator(store, &fakeEngine{}, testSettings(t), zaptest.NewLogger(t))
	result, err := orch.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, result.Failed(), 1)
	failed := result.Failed()[0]
	assert.ErrorContains(t, failed.Err, "attaching document")
	// The destination record exists without its file.
	assert.NotZero(t, failed.DestinationRecordID)
	assert.Len(t, store.added, 1)
}
