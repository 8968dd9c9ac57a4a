package sinks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/chunkgen/internal/progress"
	"github.com/JakeFAU/chunkgen/internal/store"
)

// StoreSink persists run history through a store.RunRepository. Within one
// batch only the latest progress event per run is written.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume applies lifecycle events in order and collapses progress updates.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	latest := make(map[uuid.UUID]progress.Event)
	order := make([]uuid.UUID, 0, 1)

	for _, evt := range batch {
		id := evt.RunUUID()
		switch {
		case evt.Stage == progress.StageRunStart:
			if err := s.repo.StartRun(ctx, id, evt.Region, evt.Total, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case evt.Stage.Terminal():
			delete(latest, id)
			if err := s.finish(ctx, id, evt); err != nil {
				return err
			}
		default:
			if _, seen := latest[id]; !seen {
				order = append(order, id)
			}
			latest[id] = evt
		}
	}

	for _, id := range order {
		evt, ok := latest[id]
		if !ok {
			continue
		}
		if err := s.repo.UpdateProgress(ctx, id, progressOf(evt)); err != nil {
			return fmt.Errorf("update run progress: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) finish(ctx context.Context, id uuid.UUID, evt progress.Event) error {
	var (
		status store.RunStatus
		note   *string
	)
	switch evt.Stage {
	case progress.StageRunStopped:
		status = store.RunStopped
	case progress.StageRunError:
		status = store.RunError
		if evt.Note != "" {
			msg := evt.Note
			note = &msg
		}
	default:
		status = store.RunDone
	}
	if err := s.repo.FinishRun(ctx, id, status, progressOf(evt), note); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.logger.Debug("run history recorded", zap.String("run_id", id.String()), zap.String("status", string(status)))
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

func progressOf(evt progress.Event) store.RunProgress {
	return store.RunProgress{
		Completed: evt.Completed,
		Failed:    evt.Failed,
		Pass:      evt.Pass,
		At:        evt.TS,
	}
}
