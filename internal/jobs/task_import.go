package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/reelmatch/reelmatch/internal/importer"
)

// ImportHandler processes one uploaded file. Row-level failures are handled
// inside the importer; an error here means the file itself failed and the
// task must not be retried blindly, so the importer has already moved it to
// FAILED and we report the error for the asynq dead-letter trail.
type ImportHandler struct {
	importer *importer.Importer
	queue    *Queue
	notifier EventNotifier

	mu            sync.Mutex
	lastBroadcast map[uuid.UUID]time.Time
}

func NewImportHandler(imp *importer.Importer, queue *Queue, notifier EventNotifier) *ImportHandler {
	h := &ImportHandler{
		importer:      imp,
		queue:         queue,
		notifier:      notifier,
		lastBroadcast: map[uuid.UUID]time.Time{},
	}
	imp.OnProgress = h.onProgress
	return h
}

// onProgress relays importer heartbeats, throttled to one broadcast per file
// per 500ms.
func (h *ImportHandler) onProgress(p importer.Progress) {
	if h.notifier == nil {
		return
	}
	h.mu.Lock()
	now := time.Now()
	if now.Sub(h.lastBroadcast[p.FileID]) < 500*time.Millisecond {
		h.mu.Unlock()
		return
	}
	h.lastBroadcast[p.FileID] = now
	h.mu.Unlock()
	h.notifier.Broadcast("import:progress", p)
}

func (h *ImportHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p ImportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	fileID, err := uuid.Parse(p.FileID)
	if err != nil {
		return fmt.Errorf("bad file id %q: %w", p.FileID, err)
	}

	if h.notifier != nil {
		h.notifier.Broadcast("import:start", map[string]string{"file_id": p.FileID})
	}

	if err := h.importer.Process(ctx, fileID); err != nil {
		if h.notifier != nil {
			h.notifier.Broadcast("import:failed", map[string]string{
				"file_id": p.FileID, "error": err.Error(),
			})
		}
		return fmt.Errorf("process import %s: %w", p.FileID, err)
	}

	h.mu.Lock()
	delete(h.lastBroadcast, fileID)
	h.mu.Unlock()

	if h.notifier != nil {
		h.notifier.Broadcast("import:complete", map[string]string{"file_id": p.FileID})
	}

	// New assertions are invisible until the views refresh; chain one.
	if h.queue != nil {
		if _, err := h.queue.EnqueueUnique(TaskScoringRefresh,
			RefreshPayload{Concurrently: true}, "scoring:refresh"); err != nil {
			return fmt.Errorf("chain scoring refresh: %w", err)
		}
	}
	return nil
}
