package ingestion_engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/fincontexta/internal/core"
	"github.com/markdave123-py/fincontexta/internal/models"
)

// jobTracker writes the visible progress of one pipeline attempt.
// Progress starts where the previous attempt of the same run left it and
// never moves backwards. Write failures are logged and swallowed; a lost
// status update must not fail the document.
type jobTracker struct {
	store      *OwnerStore
	jobID      string
	progress   int
	documentID *string
}

func newJobTracker(store *OwnerStore, jobID string, progress int) *jobTracker {
	return &jobTracker{store: store, jobID: jobID, progress: progress}
}

func (t *jobTracker) attachDocument(id string) {
	t.documentID = &id
}

func (t *jobTracker) advance(ctx context.Context, status models.JobStatus, step string, progress int) {
	t.progress = max(t.progress, progress)
	t.write(ctx, models.JobUpdate{Status: status, CurrentStep: step, Progress: t.progress})
}

func (t *jobTracker) complete(ctx context.Context, step string) {
	t.progress = 100
	t.write(ctx, models.JobUpdate{Status: models.JobCompleted, CurrentStep: step, Progress: t.progress})
}

func (t *jobTracker) fail(ctx context.Context, f core.Failure) {
	code, msg := string(f.Code), f.Message
	t.write(ctx, models.JobUpdate{
		Status:       models.JobFailed,
		CurrentStep:  "Failed",
		Progress:     t.progress,
		ErrorMessage: &msg,
		ErrorCode:    &code,
	})
}

// requeue parks the job as pending while the runner waits to try again.
// The code stays visible so pollers can see why the job went back.
func (t *jobTracker) requeue(ctx context.Context, f core.Failure, attempt int) {
	code, msg := string(f.Code), f.Message
	t.write(ctx, models.JobUpdate{
		Status:       models.JobPending,
		CurrentStep:  fmt.Sprintf("Waiting to retry after attempt %d", attempt),
		Progress:     t.progress,
		ErrorMessage: &msg,
		ErrorCode:    &code,
	})
}

func (t *jobTracker) write(ctx context.Context, upd models.JobUpdate) {
	upd.DocumentID = t.documentID
	if err := t.store.UpdateJob(ctx, t.jobID, upd); err != nil {
		slog.Error("job status update failed", "job_id", t.jobID, "status", upd.Status, "err", err)
	}
}
