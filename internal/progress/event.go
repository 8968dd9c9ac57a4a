package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the run milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunProgress Stage = "RUN_PROGRESS"
	StageRunRetry    Stage = "RUN_RETRY"
	StageRunDone     Stage = "RUN_DONE"
	StageRunStopped  Stage = "RUN_STOPPED"
	StageRunError    Stage = "RUN_ERROR"
)

// Terminal reports whether no further events follow s for the same run.
func (s Stage) Terminal() bool {
	switch s {
	case StageRunDone, StageRunStopped, StageRunError:
		return true
	default:
		return false
	}
}

// Event captures one observation of a scheduling run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage is the milestone that occurred.
	Stage Stage
	// Region names the area being populated (the world name for the CLI).
	Region string
	// Completed, Failed and Total mirror the scheduler snapshot.
	Completed int64
	Failed    int64
	Total     int64
	// Pass is 1 for the initial traversal and 2 for the retry pass.
	Pass int
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunProgress, StageRunRetry, StageRunDone, StageRunStopped, StageRunError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Completed < 0 || e.Failed < 0 || e.Total < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Completed > e.Total {
		return fmt.Errorf("completed %d exceeds total %d", e.Completed, e.Total)
	}
	return nil
}

// Percent returns Completed as a percentage of Total.
func (e Event) Percent() float64 {
	if e.Total <= 0 {
		return 0
	}
	return float64(e.Completed) / float64(e.Total) * 100
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
