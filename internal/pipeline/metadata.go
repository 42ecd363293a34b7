package pipeline

import (
	"sync"
	"time"

	"github.com/IamSmokeY/SnapBooks/internal/document"
)

// State is a stage of a conversion run
type State string

const (
	StateExtracting   State = "extracting"
	StateComputingTax State = "computing_tax"
	StateValidating   State = "validating"
	StateGenerating   State = "generating"
	StatePersisting   State = "persisting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// Facts are step specific observations such as confidence or artifact sizes
type Facts map[string]any

// Step is one entry of the run log
type Step struct {
	Name       State `json:"name"`
	DurationMs int64 `json:"duration_ms"`
	Skipped    bool  `json:"skipped,omitempty"`
	Facts      Facts `json:"facts,omitempty"`
}

// Metadata is the ordered log of a run
type Metadata struct {
	Kind             document.Kind `json:"document_type"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Steps            []Step        `json:"steps"`
	TotalDurationMs  int64         `json:"total_duration_ms"`
	Final            State         `json:"final_state"`
	Success          bool          `json:"success"`
	Error            string        `json:"error,omitempty"`
	PersistenceError string        `json:"persistence_error,omitempty"`
}

// runLog collects steps while a run is in flight. The deadline path snapshots it while the
// worker goroutine may still be appending.
type runLog struct {
	mu         sync.Mutex
	kind       document.Kind
	startedAt  time.Time
	steps      []Step
	persistErr string
	recorder   Recorder
}

func newRunLog(kind document.Kind, startedAt time.Time, recorder Recorder) *runLog {
	return &runLog{kind: kind, startedAt: startedAt, recorder: recorder}
}

func (l *runLog) add(name State, started time.Time, facts Facts) {
	d := time.Since(started)
	l.append(Step{Name: name, DurationMs: d.Milliseconds(), Facts: facts}, d)
}

func (l *runLog) skip(name State, facts Facts) {
	l.append(Step{Name: name, Skipped: true, Facts: facts}, 0)
}

func (l *runLog) append(step Step, d time.Duration) {
	l.mu.Lock()
	l.steps = append(l.steps, step)
	l.mu.Unlock()

	if l.recorder != nil {
		l.recorder.StepFinished(step.Name, step.Skipped, d)
	}
}

func (l *runLog) persistenceFailed(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.persistErr = err.Error()
}

// snapshot copies the log into a Metadata value
func (l *runLog) snapshot(finished time.Time, final State, runErr error) Metadata {
	l.mu.Lock()
	defer l.mu.Unlock()

	md := Metadata{
		Kind:             l.kind,
		StartedAt:        l.startedAt,
		FinishedAt:       finished,
		Steps:            append([]Step(nil), l.steps...),
		TotalDurationMs:  finished.Sub(l.startedAt).Milliseconds(),
		Final:            final,
		Success:          runErr == nil,
		PersistenceError: l.persistErr,
	}
	if runErr != nil {
		md.Error = runErr.Error()
	}
	return md
}
