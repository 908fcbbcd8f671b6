package progress

import (
	"time"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// Record is the flat, serialisable view of an Event used by file and
// publisher sinks.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	RunID      string    `json:"run_id"`
	Pass       string    `json:"pass"`
	Stage      string    `json:"stage"`
	Zone       string    `json:"zone,omitempty"`
	Label      string    `json:"label,omitempty"`
	UnitID     string    `json:"unit_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Found      int64     `json:"found"`
	Checked    int64     `json:"checked"`
	Total      int64     `json:"total"`
	DurationMs int64     `json:"duration_ms"`
	Rate       float64   `json:"rate,omitempty"`
	Date       string    `json:"date,omitempty"`
	Copyright  string    `json:"copyright,omitempty"`
	Note       string    `json:"note,omitempty"`
}

// Status maps the outcome to the progress log vocabulary; enriched and
// partially enriched panoramas are reported as "success".
func (e Event) Status() string {
	if e.Outcome == harvest.OutcomeEnriched || e.Outcome == harvest.OutcomePartial {
		return "success"
	}
	return string(e.Outcome)
}

// Record flattens e.
func (e Event) Record() Record {
	r := Record{
		Timestamp:  e.TS.UTC(),
		RunID:      e.RunUUID().String(),
		Pass:       string(e.Pass),
		Stage:      string(e.Stage),
		Zone:       e.Zone,
		Label:      e.Label,
		UnitID:     e.UnitID,
		Status:     e.Status(),
		Found:      e.Found,
		Checked:    e.Checked,
		Total:      e.Total,
		DurationMs: e.Dur.Milliseconds(),
		Date:       e.Date,
		Copyright:  e.Copyright,
		Note:       e.Note,
	}
	if e.Stage == StageBatchDone || e.Stage == StageRunDone {
		r.Rate = e.Rate()
	}
	return r
}
