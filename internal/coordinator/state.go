package coordinator

import (
	"errors"
	"sync"
	"time"

	"mediadesk/internal/engine"
	"mediadesk/internal/protocol"
	"mediadesk/internal/services"
)

// Status is the coordinator-side job status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// JobState is the observable state of one engine.
type JobState struct {
	Engine        engine.Kind        `json:"engine"`
	Status        Status             `json:"status"`
	JobID         string             `json:"job_id,omitempty"`
	Message       string             `json:"message,omitempty"`
	Progress      float64            `json:"progress"`
	Indeterminate bool               `json:"indeterminate"`
	Error         string             `json:"error,omitempty"`
	ErrorKind     string             `json:"error_kind,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Result        *protocol.Response `json:"-"`
	Err           error              `json:"-"`
}

// Busy reports whether a job is in flight.
func (s JobState) Busy() bool { return s.Status == StatusLoading }

// Machine tracks the state of one engine.
type Machine struct {
	kind   engine.Kind
	notify func(JobState)

	mu    sync.Mutex
	state JobState
}

func newMachine(kind engine.Kind, notify func(JobState)) *Machine {
	return &Machine{
		kind:   kind,
		notify: notify,
		state:  JobState{Engine: kind, Status: StatusIdle, UpdatedAt: time.Now()},
	}
}

// State returns a snapshot.
func (m *Machine) State() JobState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// begin moves to loading. It is rejected while a job is already loading.
func (m *Machine) begin(jobID, message string, indeterminate bool) error {
	return m.transition(func(s *JobState) error {
		if s.Status == StatusLoading {
			return services.Wrap(services.ErrEngineBusy, string(m.kind), "begin", "a job is already running", nil)
		}
		*s = JobState{
			Engine:        m.kind,
			Status:        StatusLoading,
			JobID:         jobID,
			Message:       message,
			Indeterminate: indeterminate,
		}
		return nil
	})
}

// update records an intermediate event. A nil progress keeps the current value.
func (m *Machine) update(message string, progress *float64, indeterminate bool) {
	_ = m.transition(func(s *JobState) error {
		if s.Status != StatusLoading {
			return errIgnored
		}
		if message != "" {
			s.Message = message
		}
		if progress != nil {
			s.Progress = *progress
		}
		s.Indeterminate = indeterminate
		return nil
	})
}

// advance moves the cyclic inference indicator: +5 per tick, back to 10
// after 90.
func (m *Machine) advance() {
	_ = m.transition(func(s *JobState) error {
		if s.Status != StatusLoading {
			return errIgnored
		}
		s.Progress = nextCyclic(s.Progress)
		return nil
	})
}

func nextCyclic(p float64) float64 {
	if p >= 90 {
		return 10
	}
	return p + 5
}

func (m *Machine) succeed(result protocol.Response) {
	_ = m.transition(func(s *JobState) error {
		if s.Status != StatusLoading {
			return errIgnored
		}
		s.Status = StatusSuccess
		s.Progress = 100
		s.Indeterminate = false
		s.Result = &result
		return nil
	})
}

func (m *Machine) fail(err error) {
	_ = m.transition(func(s *JobState) error {
		if s.Status != StatusLoading {
			return errIgnored
		}
		s.Status = StatusError
		s.Progress = 0
		s.Indeterminate = false
		s.Message = err.Error()
		s.Error = err.Error()
		s.ErrorKind = services.Kind(err)
		s.Err = err
		return nil
	})
}

// reset returns a finished machine to idle.
func (m *Machine) reset() error {
	return m.transition(func(s *JobState) error {
		if s.Status == StatusLoading {
			return services.Wrap(services.ErrEngineBusy, string(m.kind), "reset", "a job is still running", nil)
		}
		*s = JobState{Engine: m.kind, Status: StatusIdle}
		return nil
	})
}

// errIgnored drops a transition that does not apply to the current status.
var errIgnored = errors.New("transition ignored")

func (m *Machine) transition(apply func(*JobState) error) error {
	m.mu.Lock()
	if err := apply(&m.state); err != nil {
		m.mu.Unlock()
		if errors.Is(err, errIgnored) {
			return nil
		}
		return err
	}
	m.state.UpdatedAt = time.Now()
	snapshot := m.state
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(snapshot)
	}
	return nil
}
