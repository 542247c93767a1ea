package export

import (
	"sync"
	"time"
)

// ErrorRevert is how long a failed download keeps showing the error label.
const ErrorRevert = 4 * time.Second

// Download button labels.
const (
	LabelIdle        = "Download"
	LabelDownloading = "Downloading..."
	LabelError       = "Error"
)

// State of a download control.
type State string

// Download states.
const (
	StateIdle        State = "idle"
	StateDownloading State = "downloading"
	StateError       State = "error"
)

// Status tracks one download control. The error state lapses back to idle after
// ErrorRevert. The zero value is idle.
type Status struct {
	mu       sync.Mutex
	state    State
	failedAt time.Time
	now      func() time.Time
}

// NewStatus returns an idle status using now as its clock. A nil now uses time.Now.
func NewStatus(now func() time.Time) *Status {
	if now == nil {
		now = time.Now
	}
	return &Status{state: StateIdle, now: now}
}

func (s *Status) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

// Begin marks a download in flight. It returns false when one is already running.
func (s *Status) Begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current() == StateDownloading {
		return false
	}
	s.state = StateDownloading
	return true
}

// Finish settles the in-flight download.
func (s *Status) Finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateError
		s.failedAt = s.clock()
		return
	}
	s.state = StateIdle
}

// State reports the current state.
func (s *Status) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current()
}

// Label renders the button text for the current state.
func (s *Status) Label() string {
	return s.State().Label()
}

// Label renders the button text for st.
func (st State) Label() string {
	switch st {
	case StateDownloading:
		return LabelDownloading
	case StateError:
		return LabelError
	}
	return LabelIdle
}

func (s *Status) current() State {
	if s.state == StateError && s.clock().Sub(s.failedAt) >= ErrorRevert {
		s.state = StateIdle
	}
	if s.state == "" {
		return StateIdle
	}
	return s.state
}

// Tracker keeps the Status of every unsettled export, keyed by client and agent.
// Entries are dropped once they are idle again, so only in-flight and recently
// failed exports are retained.
type Tracker struct {
	mu       sync.Mutex
	statuses map[string]*Status
	now      func() time.Time
}

// NewTracker constructs a Tracker.
func NewTracker(now func() time.Time) *Tracker {
	return &Tracker{statuses: make(map[string]*Status), now: now}
}

func trackerKey(clientID, agentID string) string {
	return clientID + "/" + agentID
}

// Begin marks clientID's export of agentID in flight. It returns false when one is
// already running.
func (t *Tracker) Begin(clientID, agentID string) bool {
	key := trackerKey(clientID, agentID)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prune()
	status, ok := t.statuses[key]
	if !ok {
		status = NewStatus(t.now)
		t.statuses[key] = status
	}
	return status.Begin()
}

// Finish settles clientID's export of agentID. A successful export forgets the entry.
func (t *Tracker) Finish(clientID, agentID string, err error) {
	key := trackerKey(clientID, agentID)
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[key]
	if !ok {
		return
	}
	status.Finish(err)
	if err == nil {
		delete(t.statuses, key)
	}
}

// Lookup reports the state of clientID's export of agentID without tracking it.
// Unknown exports are idle.
func (t *Tracker) Lookup(clientID, agentID string) State {
	key := trackerKey(clientID, agentID)
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[key]
	if !ok {
		return StateIdle
	}
	state := status.State()
	if state == StateIdle {
		delete(t.statuses, key)
	}
	return state
}

// Len reports how many exports are tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.statuses)
}

// prune drops entries whose error has lapsed. Callers hold t.mu.
func (t *Tracker) prune() {
	for key, status := range t.statuses {
		if status.State() == StateIdle {
			delete(t.statuses, key)
		}
	}
}
