package merge

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// resetConcurrency bounds the update fan-out against the store.
const resetConcurrency = 8

// ResetTemplateLinks clears the template relationship on every fetched record
// so the next trigger doesn't pick it up again. One update per record, each
// touching only the link field. Individual failures are logged and counted,
// never fatal: the record simply stays a merge candidate for the next run,
// and failing the whole run over bookkeeping would defeat its purpose. The
// whole batch is awaited before the pipeline proceeds.
//
// Returns the number of records whose reset failed.
func ResetTemplateLinks(ctx context.Context, store Store, viewID int, records []Record, linkField string, log *zap.Logger) int {
	fields := map[string]any{linkField: nil}

	var g errgroup.Group
	g.SetLimit(resetConcurrency)
	failed := make(chan int64, len(records))
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if err := store.UpdateRecord(ctx, viewID, rec.ID(), fields); err != nil {
				log.Warn("unable to clear template relationship; check that the link field name matches the source table exactly",
					zap.Int("view_id", viewID),
					zap.Int64("record_id", rec.ID()),
					zap.String("field", linkField),
					zap.Error(err))
				failed <- rec.ID()
			}
			return nil
		})
	}
	_ = g.Wait()
	close(failed)
	return len(failed)
}
