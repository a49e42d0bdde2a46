package jobs

import (
	"github.com/reelmatch/reelmatch/internal/importer"
	"github.com/reelmatch/reelmatch/internal/scoring"
)

const (
	TaskImportProcess  = "import:process_file"
	TaskScoringRefresh = "scoring:refresh"
)

// ──────── Payloads ────────

type ImportPayload struct {
	FileID string `json:"file_id"`
}

type RefreshPayload struct {
	Concurrently bool `json:"concurrently,omitempty"`
}

// EventNotifier pushes live events to connected clients.
type EventNotifier interface {
	Broadcast(event string, data interface{})
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, imp *importer.Importer, view *scoring.View, notifier EventNotifier) {
	q.RegisterHandler(TaskImportProcess, NewImportHandler(imp, q, notifier))
	q.RegisterHandler(TaskScoringRefresh, NewRefreshHandler(view, notifier))
}
