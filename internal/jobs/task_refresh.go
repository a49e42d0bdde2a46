package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/reelmatch/reelmatch/internal/scoring"
)

// RefreshHandler rebuilds the materialized scoring views. Concurrent
// refreshes keep readers unblocked at the cost of a slower rebuild; the
// first population after a migration must run non-concurrently.
type RefreshHandler struct {
	view     *scoring.View
	notifier EventNotifier
}

func NewRefreshHandler(view *scoring.View, notifier EventNotifier) *RefreshHandler {
	return &RefreshHandler{view: view, notifier: notifier}
}

func (h *RefreshHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p RefreshPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	started := time.Now()
	if err := h.view.Refresh(ctx, p.Concurrently); err != nil {
		return fmt.Errorf("refresh scoring views: %w", err)
	}

	if h.notifier != nil {
		h.notifier.Broadcast("scoring:refreshed", map[string]interface{}{
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}
	return nil
}
