package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
)

// Failure records one action that the store rejected.
type Failure struct {
	Action Action
	Err    string
}

// ApplyStats summarizes an apply run.
type ApplyStats struct {
	Total    int
	Applied  int
	Failed   int
	Skipped  int
	Failures []Failure
	Duration time.Duration
}

// Applier executes staged actions against the store, one at a time. The
// client's rate limiter paces the writes; a failed item is logged and
// counted, and the run continues.
type Applier struct {
	client *knack.Client
	log    *logger.Logger
}

// NewApplier creates an applier.
func NewApplier(client *knack.Client, log *logger.Logger) (*Applier, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Applier{client: client, log: log}, nil
}

// Apply executes each action in order. Informational actions are skipped.
// The returned stats are valid even when err is non-nil (cancellation).
func (a *Applier) Apply(ctx context.Context, actions []Action) (*ApplyStats, error) {
	stats := &ApplyStats{Total: len(actions)}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	for _, action := range actions {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		log := a.log.WithAction(string(action.Kind)).WithCollection(action.Collection)

		var err error
		switch action.Kind {
		case CreateRecord:
			var id string
			id, err = a.client.Create(ctx, action.Object, action.Fields)
			if err == nil {
				log.Infow("created record", "id", id, "identifier", action.Identifier)
			}
		case PopulateField:
			err = a.client.Update(ctx, action.Object, action.RecordID, action.Fields)
			if err == nil {
				log.Infow("populated field", "id", action.RecordID, "identifier", action.Identifier)
			}
		case UpdateField:
			err = a.client.Update(ctx, action.Object, action.RecordID, action.Fields)
			if err == nil {
				log.Infow("updated field", "id", action.RecordID, "identifier", action.Identifier)
			}
		case DeleteRecord:
			err = a.client.Delete(ctx, action.Object, action.RecordID)
			if err == nil {
				log.Infow("deleted record", "id", action.RecordID, "identifier", action.Identifier)
			}
		default:
			stats.Skipped++
			continue
		}

		if err != nil {
			stats.Failed++
			stats.Failures = append(stats.Failures, Failure{Action: action, Err: err.Error()})
			log.Warnw("action failed", "id", action.RecordID, "identifier", action.Identifier, "error", err)
			continue
		}
		stats.Applied++
	}

	return stats, nil
}
