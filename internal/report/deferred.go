package report

import (
	"context"

	"github.com/google/uuid"

	"github.com/JakeFAU/chunkgen/internal/scheduler"
)

// Defer postpones building a Source until the reporter first pulls from it, so
// validation errors from scheduling surface in StateInit like any other
// first-step failure.
func Defer(build func() (*scheduler.Run, error)) Source {
	return &deferred{build: build}
}

type deferred struct {
	build func() (*scheduler.Run, error)
	run   *scheduler.Run
	err   error
}

func (d *deferred) Next(ctx context.Context) (scheduler.Snapshot, error) {
	if d.run == nil && d.err == nil {
		d.run, d.err = d.build()
		if d.err == nil && d.run == nil {
			d.err = scheduler.ErrDone
		}
	}
	if d.err != nil {
		return scheduler.Snapshot{}, d.err
	}
	return d.run.Next(ctx)
}

func (d *deferred) ID() uuid.UUID {
	if d.run == nil {
		return uuid.Nil
	}
	return d.run.ID()
}

func (d *deferred) Stopped() bool {
	return d.run != nil && d.run.Stopped()
}

// RunOf returns the run behind src, or nil if none was built.
func RunOf(src Source) *scheduler.Run {
	switch v := src.(type) {
	case *scheduler.Run:
		return v
	case *deferred:
		return v.run
	default:
		return nil
	}
}
