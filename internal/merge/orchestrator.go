package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"docxmerge/internal/render"
)

// maxRecordsPerRun bounds one view fetch; the next trigger picks up the rest.
const maxRecordsPerRun = 1000

// mergeConcurrency bounds how many template groups render at once. Groups are
// independent; records within a group are strictly sequential.
const mergeConcurrency = 4

// Settings carries the view ids and field names one pipeline run needs.
// Field names configured here are checked against the live source schema
// before any record is touched.
type Settings struct {
	SourceViewID int

	// Source view field roles
	TemplateLinkField string
	RecordIDField     string
	LastUserField     string
	ImageFields       []string // empty = auto-detect image-typed fields

	// Template view
	TemplateViewID   int
	TemplateDocField string

	// Destination view. Document is required; the other fields are optional
	// bookkeeping, skipped when unconfigured.
	DestinationViewID int
	DestDocumentField string
	DestDetailsField  string
	DestTemplateField string
	DestMergeUser     string

	// Rendering
	ImageWidth  int
	ImageHeight int
	StagingDir  string // empty = system temp dir
}

// sourceRoles lists the settings that must resolve against the live source
// view schema. Last-user is read leniently from record data and is not
// required to be projected into the view.
func (s Settings) sourceRoles() []FieldRole {
	roles := []FieldRole{
		{Key: "source.template_link_field", Field: s.TemplateLinkField},
	}
	if s.RecordIDField != "" {
		roles = append(roles, FieldRole{Key: "source.record_id_field", Field: s.RecordIDField})
	}
	for _, f := range s.ImageFields {
		roles = append(roles, FieldRole{Key: "source.image_fields", Field: f})
	}
	return roles
}

// GroupResult is the terminal outcome for one template group: either a filed
// document or the error that stopped it. Sibling groups are independent.
type GroupResult struct {
	TemplateID   int64
	TemplateName string

	// RecordIDs are the user-visible record identifiers merged into the
	// document, in fetch order.
	RecordIDs []string

	// DestinationRecordID is the created record in the destination view. It
	// can be set even when Err is: an attach failure leaves the record
	// without its file.
	DestinationRecordID int64

	// StagedPath is the disposable on-disk copy of the generated document.
	StagedPath string

	Err error
}

// Result is the explicit outcome of one pipeline run.
type Result struct {
	RunID         string
	ViewID        int
	RecordCount   int
	SkippedImages int
	ResetFailures int
	Groups        []GroupResult
}

// Empty reports the distinguishable "nothing to do" outcome: the source view
// held no records.
func (r *Result) Empty() bool { return r.RecordCount == 0 }

// Failed lists the groups that did not complete.
func (r *Result) Failed() []GroupResult {
	var failed []GroupResult
	for _, g := range r.Groups {
		if g.Err != nil {
			failed = append(failed, g)
		}
	}
	return failed
}

// Summary renders a one-line human description of the run.
func (r *Result) Summary() string {
	if r.Empty() {
		return "no records to merge"
	}
	failed := len(r.Failed())
	return fmt.Sprintf("merged %d records into %d documents (%d groups failed)",
		r.RecordCount, len(r.Groups)-failed, failed)
}

// Orchestrator drives the whole pipeline: fetch, image resolution, link
// reset, grouping, template fetch, then per-group rendering and filing.
type Orchestrator struct {
	store    Store
	engine   render.Engine
	settings Settings
	log      *zap.Logger
}

// NewOrchestrator wires the pipeline against a record store and a templating
// engine.
func NewOrchestrator(store Store, engine render.Engine, settings Settings, log *zap.Logger) *Orchestrator {
	return &Orchestrator{store: store, engine: engine, settings: settings, log: log}
}

// Run executes one merge pass over the source view. The stages run strictly
// forward, no retries: a fatal failure (auth, store unreachable) aborts and
// surfaces as the returned error; per-group failures are recorded in the
// Result and leave sibling groups untouched. Zero source records is a
// successful, distinguishable "nothing to do" result.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	s := o.settings
	res := &Result{RunID: uuid.NewString(), ViewID: s.SourceViewID}
	log := o.log.With(zap.String("run_id", res.RunID), zap.Int("view_id", s.SourceViewID))

	view, err := o.store.GetView(ctx, s.SourceViewID, &Paging{Start: 0, Max: maxRecordsPerRun})
	if err != nil {
		return nil, fmt.Errorf("fetching view %d: %w", s.SourceViewID, err)
	}
	res.RecordCount = len(view.Data)
	log.Info("records found in view", zap.Int("count", len(view.Data)))
	if len(view.Data) == 0 {
		return res, nil
	}

	if errs := ValidateRoles(s.sourceRoles(), s.SourceViewID, view.Structure); len(errs) > 0 {
		return nil, errs[0]
	}

	imageFields := s.ImageFields
	if len(imageFields) == 0 {
		imageFields = ImageFields(view.Structure)
	}
	outcomes, err := NewImageResolver(o.store, s.SourceViewID, log).Resolve(ctx, view.Data, imageFields)
	if err != nil {
		return nil, err
	}
	for _, out := range outcomes {
		if out.Skipped {
			res.SkippedImages++
		}
	}

	res.ResetFailures = ResetTemplateLinks(ctx, o.store, s.SourceViewID, view.Data, s.TemplateLinkField, log)

	groups := GroupByTemplate(view.Data, s.TemplateLinkField)
	if len(groups) == 0 {
		log.Info("no records link to a template")
		return res, nil
	}

	templateIDs := make([]int64, len(groups))
	for i, grp := range groups {
		templateIDs[i] = grp.TemplateID
	}
	fetcher := NewTemplateFetcher(o.store, s.TemplateViewID, s.TemplateDocField, log)
	bundles, fetchErrs := fetcher.Fetch(ctx, templateIDs)

	res.Groups = make([]GroupResult, len(groups))
	var g errgroup.Group
	g.SetLimit(mergeConcurrency)
	for i, grp := range groups {
		i, grp := i, grp
		g.Go(func() error {
			res.Groups[i] = o.mergeGroup(ctx, grp, bundles[grp.TemplateID], fetchErrs[grp.TemplateID], view.Structure, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, gr := range res.Groups {
		if gr.Err != nil {
			log.Error("group failed", zap.Int64("template_id", gr.TemplateID), zap.Error(gr.Err))
		}
	}
	log.Info("run complete", zap.String("summary", res.Summary()))
	return res, nil
}

// mergeGroup renders one template group and files the result: normalize each
// record, render the document, create the destination record, then attach the
// file. The destination record is created before the attach, so an attach
// failure leaves an orphaned record without its file; that is accepted and
// reported, not retried.
func (o *Orchestrator) mergeGroup(ctx context.Context, grp Group, bundle *TemplateBundle, fetchErr error, structure []FieldSchema, log *zap.Logger) GroupResult {
	s := o.settings
	gr := GroupResult{
		TemplateID: grp.TemplateID,
		RecordIDs:  recordIDs(grp.Records, s.RecordIDField),
	}
	if fetchErr != nil {
		gr.Err = fetchErr
		return gr
	}
	gr.TemplateName = bundle.Name

	data := render.Data{Records: make([]render.Record, len(grp.Records))}
	for i, rec := range grp.Records {
		data.Records[i] = render.Record(Normalize(rec, structure))
	}

	out, err := o.engine.Render(bundle.Contents, data, render.Options{
		Images: render.DefaultImageOptions(s.ImageWidth, s.ImageHeight),
	})
	if err != nil {
		gr.Err = fmt.Errorf("rendering template %d (%s): %w", grp.TemplateID, bundle.Name, err)
		return gr
	}

	filename := stagedFilename(bundle.Name)
	gr.StagedPath = o.stage(filename, out, log)

	fields := map[string]any{}
	if s.DestDetailsField != "" {
		fields[s.DestDetailsField] = fmt.Sprintf("Merged %d records:\n%s",
			len(grp.Records), strings.Join(gr.RecordIDs, "\n"))
	}
	if s.DestTemplateField != "" {
		fields[s.DestTemplateField] = grp.TemplateID
	}
	if s.DestMergeUser != "" {
		if userID, ok := lastUpdatedUser(grp.Records, s.LastUserField); ok {
			fields[s.DestMergeUser] = userID
		}
	}

	destID, err := o.store.AddRecord(ctx, s.DestinationViewID, fields)
	if err != nil {
		gr.Err = fmt.Errorf("creating destination record for template %d: %w", grp.TemplateID, err)
		return gr
	}
	gr.DestinationRecordID = destID

	if err := o.store.AttachFile(ctx, s.DestinationViewID, destID, s.DestDocumentField, filename, out); err != nil {
		gr.Err = fmt.Errorf("attaching document to record %d: %w", destID, err)
		return gr
	}
	log.Info("filed merged document",
		zap.Int64("template_id", grp.TemplateID),
		zap.Int64("destination_record_id", destID),
		zap.Int("records", len(grp.Records)))
	return gr
}

// stage writes the disposable on-disk copy of a generated document. Staging
// failure never fails the group; the attach works from memory.
func (o *Orchestrator) stage(filename string, contents []byte, log *zap.Logger) string {
	dir := o.settings.StagingDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, contents, 0644); err != nil {
		log.Warn("unable to stage document copy", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

// recordIDs collects the user-visible record identifiers of a group in fetch
// order, skipping records without one.
func recordIDs(records []Record, idField string) []string {
	var ids []string
	if idField == "" {
		return ids
	}
	for _, rec := range records {
		if v, ok := rec[idField]; ok && !v.IsEmpty() {
			ids = append(ids, v.String())
		}
	}
	return ids
}

// lastUpdatedUser reads the last-editing-user id off the first record of a
// group.
func lastUpdatedUser(records []Record, userField string) (int64, bool) {
	if userField == "" || len(records) == 0 {
		return 0, false
	}
	v, ok := records[0][IdentifierField(userField)]
	if !ok || v.IsEmpty() {
		return 0, false
	}
	return v.Int64()
}

// stagedFilename prefixes the template's display name with the generation
// timestamp, matching how filed documents are named for users.
func stagedFilename(templateName string) string {
	return time.Now().Format("1-2-2006 3.04.05pm") + "_" + templateName
}
