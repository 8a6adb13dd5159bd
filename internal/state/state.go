package state

import (
	"log/slog"
	"sync"
	"time"

	"github.com/capreel/capreel/internal/capture"
	"github.com/capreel/capreel/internal/config"
	"github.com/capreel/capreel/internal/media"
)

// Phase names the active AppState variant. Exactly one phase is live at any
// instant; transitions through Store methods are the only mutation path.
type Phase string

const (
	PhaseInitializing Phase = "INITIALIZING"
	PhaseIdle         Phase = "IDLE"
	PhasePreparing    Phase = "PREPARING"
	PhaseRecording    Phase = "RECORDING"
	PhaseProcessing   Phase = "PROCESSING"
	PhaseEditing      Phase = "EDITING"
	PhaseConfiguring  Phase = "CONFIGURING"
	PhaseError        Phase = "ERROR"
)

// Stage is the coarse processing progress marker shown to the UI.
type Stage string

const (
	StageCollectingFrames    Stage = "collecting_frames"
	StageEncoding            Stage = "encoding"
	StageOptimizing          Stage = "optimizing"
	StageSaving              Stage = "saving"
	StageGeneratingThumbnail Stage = "generating_thumbnail"
	StageUpdatingIndex       Stage = "updating_index"
)

// RecordingSession describes one recording attempt. Sessions are treated as
// immutable values: every update builds a replacement rather than mutating
// shared state.
type RecordingSession struct {
	ID            string          `json:"id"`
	StartTime     time.Time       `json:"start_time"`
	Region        *capture.Region `json:"region,omitempty"`
	FrameCount    int             `json:"frame_count"`
	Duration      float64         `json:"duration"` // seconds, excluding paused intervals
	EstimatedSize int64           `json:"estimated_size"`
	BackendDetail string          `json:"backend_detail,omitempty"`
	Format        media.Format    `json:"format"`
	MaxDuration   time.Duration   `json:"max_duration"`
	FrameDir      string          `json:"frame_dir"`
}

// ErrorInfo carries a user-presentable failure.
type ErrorInfo struct {
	Message     string `json:"message"`
	Cause       string `json:"cause,omitempty"`
	Recoverable bool   `json:"recoverable"`
}

// AppState is the single application state value published to all readers.
type AppState struct {
	Phase    Phase                  `json:"phase"`
	Settings config.RecordingConfig `json:"settings"`
	Recent   []media.Item           `json:"recent"`

	// Preparing
	Area      *capture.Region `json:"area,omitempty"`
	Countdown int             `json:"countdown,omitempty"`

	// Recording / Processing
	Session *RecordingSession `json:"session,omitempty"`
	Paused  bool              `json:"paused,omitempty"`
	Backend string            `json:"backend,omitempty"`

	// Processing
	Progress float64       `json:"progress,omitempty"` // 0-100
	Stage    Stage         `json:"stage,omitempty"`
	ETA      time.Duration `json:"eta,omitempty"` // 0 = unknown

	// Editing
	EditItem *media.Item `json:"edit_item,omitempty"`

	// Error
	Err      *ErrorInfo `json:"error,omitempty"`
	previous *AppState
}

// maxRecent bounds the recent-recordings list carried in state; the full
// history lives in the media catalog.
const maxRecent = 20

// Store is the single source of truth for application state. One mutex
// serializes every transition, so state changes form a total order no
// matter how many goroutines trigger them. Invalid transitions are logged
// and ignored rather than raised: duplicate triggers from UI races are
// expected and must not crash the pipeline.
type Store struct {
	mu      sync.Mutex
	current AppState
	subs    map[int]chan AppState
	nextSub int
}

// NewStore creates a store in the Initializing phase.
func NewStore() *Store {
	return &Store{
		current: AppState{Phase: PhaseInitializing},
		subs:    make(map[int]chan AppState),
	}
}

// Current returns a snapshot of the present state. The returned value is a
// copy; mutating it has no effect on the store.
func (s *Store) Current() AppState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.current)
}

// Subscribe registers a state reader. The channel holds the most recent
// value only: a slow reader sees the latest state on its next receive and
// never blocks publication. The returned function cancels the
// subscription.
func (s *Store) Subscribe() (<-chan AppState, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++

	ch := make(chan AppState, 1)
	ch <- snapshot(s.current)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// publish pushes the current state to all subscribers, last value wins.
// Callers must hold s.mu.
func (s *Store) publish() {
	for _, ch := range s.subs {
		st := snapshot(s.current)
		select {
		case ch <- st:
		default:
			// Drop the stale value and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// snapshot deep-copies the parts of AppState that readers could otherwise
// share with the store.
func snapshot(st AppState) AppState {
	out := st
	if st.Session != nil {
		sess := *st.Session
		out.Session = &sess
	}
	if st.Area != nil {
		area := *st.Area
		out.Area = &area
	}
	if st.Err != nil {
		e := *st.Err
		out.Err = &e
	}
	if st.EditItem != nil {
		item := *st.EditItem
		out.EditItem = &item
	}
	out.Recent = append([]media.Item(nil), st.Recent...)
	out.previous = nil
	return out
}

// ignored records a transition request that does not match the current
// phase. Deliberately not an error: see the lenient-FSM note above.
func (s *Store) ignored(op string) {
	slog.Debug("State transition ignored", "operation", op, "phase", s.current.Phase)
}

// Initialize moves Initializing -> Idle with loaded settings and the
// recent-recordings list.
func (s *Store) Initialize(settings config.RecordingConfig, recent []media.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseInitializing {
		s.ignored("initialize")
		return false
	}

	s.current = AppState{
		Phase:    PhaseIdle,
		Settings: settings,
		Recent:   recent,
	}
	s.publish()
	return true
}

// PrepareRecording moves Idle (or a recoverable Error over Idle) ->
// Preparing with an optional pre-selected area.
func (s *Store) PrepareRecording(area *capture.Region, countdown int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.current.Phase == PhaseIdle
	if s.current.Phase == PhaseError && s.current.previous != nil && s.current.previous.Phase == PhaseIdle {
		ok = true
		s.current = *s.current.previous
	}
	if !ok {
		s.ignored("prepare_recording")
		return false
	}

	s.current.Phase = PhasePreparing
	s.current.Area = area
	s.current.Countdown = countdown
	s.publish()
	return true
}

// StartRecording installs a fresh session and moves to Recording. Allowed
// from any phase so a hotkey can cut through Preparing, Idle or a stale
// Error.
func (s *Store) StartRecording(session RecordingSession, backend string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = AppState{
		Phase:    PhaseRecording,
		Settings: s.current.Settings,
		Recent:   s.current.Recent,
		Session:  &session,
		Backend:  backend,
	}
	s.publish()
	return true
}

// UpdateRecordingProgress replaces the session value with updated
// telemetry. Only valid while Recording.
func (s *Store) UpdateRecordingProgress(frameCount int, duration float64, estimatedSize int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseRecording || s.current.Session == nil {
		s.ignored("update_recording_progress")
		return false
	}

	next := *s.current.Session
	next.FrameCount = frameCount
	next.Duration = duration
	next.EstimatedSize = estimatedSize
	s.current.Session = &next
	s.publish()
	return true
}

// TogglePause flips the paused flag while Recording.
func (s *Store) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseRecording {
		s.ignored("toggle_pause")
		return false
	}

	s.current.Paused = !s.current.Paused
	s.publish()
	return true
}

// StopRecording freezes the session and moves Recording -> Processing.
func (s *Store) StopRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseRecording {
		s.ignored("stop_recording")
		return false
	}

	s.current.Phase = PhaseProcessing
	s.current.Paused = false
	s.current.Progress = 0
	s.current.Stage = StageCollectingFrames
	s.publish()
	return true
}

// UpdateProcessingProgress reports encode progress while Processing.
// Progress is clamped to [0,100].
func (s *Store) UpdateProcessingProgress(progress float64, stage Stage, eta time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseProcessing {
		s.ignored("update_processing_progress")
		return false
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.current.Progress = progress
	s.current.Stage = stage
	s.current.ETA = eta
	s.publish()
	return true
}

// CompleteProcessing prepends the finished item to the recent list and
// returns to Idle.
func (s *Store) CompleteProcessing(item media.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseProcessing {
		s.ignored("complete_processing")
		return false
	}

	recent := append([]media.Item{item}, s.current.Recent...)
	if len(recent) > maxRecent {
		recent = recent[:maxRecent]
	}

	s.current = AppState{
		Phase:    PhaseIdle,
		Settings: s.current.Settings,
		Recent:   recent,
	}
	s.publish()
	return true
}

// OpenEditor moves Idle -> Editing for a finished recording.
func (s *Store) OpenEditor(item media.Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseIdle {
		s.ignored("open_editor")
		return false
	}

	s.current.Phase = PhaseEditing
	s.current.EditItem = &item
	s.publish()
	return true
}

// OpenSettings moves Idle -> Configuring.
func (s *Store) OpenSettings() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseIdle {
		s.ignored("open_settings")
		return false
	}

	s.current.Phase = PhaseConfiguring
	s.publish()
	return true
}

// CloseOverlay returns from Editing or Configuring to Idle, optionally
// installing updated settings.
func (s *Store) CloseOverlay(settings *config.RecordingConfig) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseEditing && s.current.Phase != PhaseConfiguring {
		s.ignored("close_overlay")
		return false
	}

	if settings != nil {
		s.current.Settings = *settings
	}
	s.current.Phase = PhaseIdle
	s.current.EditItem = nil
	s.publish()
	return true
}

// HandleError moves any non-Error phase to Error, preserving the prior
// state so the user can recover without losing context.
func (s *Store) HandleError(message string, cause error, recoverable bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase == PhaseError {
		s.ignored("handle_error")
		return false
	}

	prev := snapshot(s.current)
	switch prev.Phase {
	case PhasePreparing, PhaseRecording, PhaseProcessing:
		// The goroutines driving a transient phase are gone once an error
		// fires, so recovery must land on Idle, not on a dead session.
		prev = AppState{
			Phase:    PhaseIdle,
			Settings: prev.Settings,
			Recent:   prev.Recent,
		}
	}
	causeStr := ""
	if cause != nil {
		causeStr = cause.Error()
	}

	s.current = AppState{
		Phase:    PhaseError,
		Settings: s.current.Settings,
		Recent:   s.current.Recent,
		Err: &ErrorInfo{
			Message:     message,
			Cause:       causeStr,
			Recoverable: recoverable,
		},
		previous: &prev,
	}
	slog.Error("Pipeline error", "message", message, "cause", causeStr, "recoverable", recoverable)
	s.publish()
	return true
}

// RecoverFromError restores the state preceding a recoverable error, or
// Idle when none was captured.
func (s *Store) RecoverFromError() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase != PhaseError || s.current.Err == nil || !s.current.Err.Recoverable {
		s.ignored("recover_from_error")
		return false
	}

	if s.current.previous != nil {
		s.current = *s.current.previous
	} else {
		s.current = AppState{
			Phase:    PhaseIdle,
			Settings: s.current.Settings,
			Recent:   s.current.Recent,
		}
	}
	s.publish()
	return true
}

// CancelCurrentOperation abandons whatever is in flight and returns to
// Idle, keeping settings and the recent list.
func (s *Store) CancelCurrentOperation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current.Phase == PhaseIdle {
		s.ignored("cancel_current_operation")
		return false
	}

	s.current = AppState{
		Phase:    PhaseIdle,
		Settings: s.current.Settings,
		Recent:   s.current.Recent,
	}
	s.publish()
	return true
}
