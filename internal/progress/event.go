package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageRunError         Stage = "RUN_ERROR"
	StageBatchStart       Stage = "BATCH_START"
	StageBatchDone        Stage = "BATCH_DONE"
	StageUnitDone         Stage = "UNIT_DONE"
	StageSampleCheckpoint Stage = "SAMPLE_CHECKPOINT"
)

// Event captures a single harvest milestone.
type Event struct {
	// RunID correlates every event of one pass invocation.
	RunID [16]byte
	TS    time.Time
	Pass  harvest.Pass
	Stage Stage
	// Zone and Label scope sampler checkpoints; Label reads "<zone> - polygon N".
	Zone  string
	Label string
	// UnitID is the sample point id or panorama id of a UNIT_DONE event.
	UnitID  string
	Outcome harvest.Outcome
	// Found counts panoramas discovered (search) or points contained (sample).
	Found int64
	// Checked and Total track how far a batch or polygon has progressed.
	Checked int64
	Total   int64
	Dur     time.Duration
	// Date and Copyright echo enriched metadata.
	Date      string
	Copyright string
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
	if e.Pass == "" {
		return errors.New("pass is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageBatchStart, StageBatchDone:
	case StageUnitDone:
		if e.UnitID == "" {
			return errors.New("unit done requires unit id")
		}
		if e.Outcome == "" {
			return errors.New("unit done requires outcome")
		}
	case StageSampleCheckpoint:
		if e.Zone == "" {
			return errors.New("sample checkpoint requires zone")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Found < 0 || e.Checked < 0 || e.Total < 0 {
		return errors.New("counters must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// Rate returns Checked units per second over Dur, or 0 without a duration.
func (e Event) Rate() float64 {
	if e.Dur <= 0 {
		return 0
	}
	return float64(e.Checked) / e.Dur.Seconds()
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
