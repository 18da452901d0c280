// Package devicestate holds the shared state of one agent scope: the port
// and serial monitor registries, the upload status, and the stream
// handles every other component hangs off.
package devicestate

import (
	"io"
	"log/slog"
	"sync"

	"github.com/buckleypaul/cloudeditor/internal/reactive"
)

// State is an immutable snapshot. Slices are replaced by updates, never
// modified in place, so a snapshot can be read without locking.
type State struct {
	Ports          []Port
	SerialMonitors []SerialMonitor
	UploadStatus   UploadStatus

	SerialMessages    *reactive.Subject[SerialMessage]
	SerialDisconnects *reactive.Subject[string]
	StateChanges      *reactive.Subject[State]
	UploadResponses   *reactive.Subject[UploadChunk]
	UploadConcat      *reactive.Subject[string]
}

// Setter is the write path into a Store.
type Setter = reactive.Setter[State]

var (
	SerialMessagesHandle = reactive.Handle[State, SerialMessage]{
		Get: func(s State) *reactive.Subject[SerialMessage] { return s.SerialMessages },
		Put: func(s *State, sub *reactive.Subject[SerialMessage]) { s.SerialMessages = sub },
	}
	SerialDisconnectsHandle = reactive.Handle[State, string]{
		Get: func(s State) *reactive.Subject[string] { return s.SerialDisconnects },
		Put: func(s *State, sub *reactive.Subject[string]) { s.SerialDisconnects = sub },
	}
	StateChangesHandle = reactive.Handle[State, State]{
		Get: func(s State) *reactive.Subject[State] { return s.StateChanges },
		Put: func(s *State, sub *reactive.Subject[State]) { s.StateChanges = sub },
	}
	UploadResponsesHandle = reactive.Handle[State, UploadChunk]{
		Get: func(s State) *reactive.Subject[UploadChunk] { return s.UploadResponses },
		Put: func(s *State, sub *reactive.Subject[UploadChunk]) { s.UploadResponses = sub },
	}
)

// StateChanges returns the state-change channel of the scope.
func StateChanges(set Setter, st State) *reactive.Subject[State] {
	return reactive.GetOrCreate(set, st, StateChangesHandle)
}

// Store owns the current snapshot of one scope. Non-quiet updates are
// broadcast on the StateChanges handle in the order they were applied.
type Store struct {
	mu       sync.Mutex
	cur      State
	initial  State
	pending  []pendingState
	emitting bool
	logger   *slog.Logger
}

// NewStore returns a store seeded with initial. A nil logger discards.
func NewStore(initial State, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{cur: initial, initial: initial, logger: logger}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

type pendingState struct {
	st   State
	done chan struct{}
}

// Set applies patch to a copy of the current snapshot and stores it. It is
// safe to call from inside a state-change observer: the nested update is
// applied at once and broadcast after the one being delivered.
func (s *Store) Set(patch func(*State), opts ...reactive.SetOption) State {
	return s.set(patch, false, opts...)
}

// SetSync is Set, except that it returns only once the update has been
// broadcast, even when another goroutine is delivering at the time. It
// must not be called from a state-change observer.
func (s *Store) SetSync(patch func(*State)) State {
	return s.set(patch, true)
}

func (s *Store) set(patch func(*State), wait bool, opts ...reactive.SetOption) State {
	o := reactive.ApplySetOptions(opts...)

	s.mu.Lock()
	next := s.cur
	patch(&next)
	if !o.Quiet && next.StateChanges == nil {
		next.StateChanges = reactive.NewSubject[State]()
	}
	s.cur = next
	if o.Quiet {
		s.mu.Unlock()
		return next
	}
	p := pendingState{st: next}
	if wait {
		p.done = make(chan struct{})
	}
	s.pending = append(s.pending, p)
	if s.emitting {
		s.mu.Unlock()
		if p.done != nil {
			<-p.done
		}
		return next
	}
	s.emitting = true
	for len(s.pending) > 0 {
		p := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		snap := p.st
		s.logger.Debug("state changed",
			"ports", len(snap.Ports),
			"serial_monitors", len(snap.SerialMonitors),
			"upload_status", string(snap.UploadStatus),
		)
		snap.StateChanges.Next(snap)
		if p.done != nil {
			close(p.done)
		}

		s.mu.Lock()
	}
	s.emitting = false
	s.mu.Unlock()
	return next
}

// Reset drops every field and handle back to the initial snapshot. It is
// meant for tests and for tearing a scope down; handles are not completed.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = s.initial
	for _, p := range s.pending {
		if p.done != nil {
			close(p.done)
		}
	}
	s.pending = nil
}

// Snapshot is the serializable part of a State, handed to another window
// so it can resume from the same registries.
type Snapshot struct {
	Ports          []Port          `json:"ports"`
	SerialMonitors []SerialMonitor `json:"serialMonitors"`
	UploadStatus   UploadStatus    `json:"uploadStatus,omitempty"`
}

// Export returns the serializable fields of the current snapshot.
func (s *Store) Export() Snapshot {
	st := s.State()
	return Snapshot{
		Ports:          append([]Port(nil), st.Ports...),
		SerialMonitors: append([]SerialMonitor(nil), st.SerialMonitors...),
		UploadStatus:   st.UploadStatus,
	}
}

// Import replaces the registries with those of snap, keeping handles.
func (s *Store) Import(snap Snapshot) State {
	return s.Set(func(st *State) {
		st.Ports = append([]Port(nil), snap.Ports...)
		st.SerialMonitors = append([]SerialMonitor(nil), snap.SerialMonitors...)
		st.UploadStatus = snap.UploadStatus
	})
}
