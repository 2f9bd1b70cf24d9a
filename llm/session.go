package llm

import (
	"errors"
	"io"
	"strings"
	"sync"
)

// SessionState tracks the lifecycle of one generation session
type SessionState int

const (
	StateIdle SessionState = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

// ErrSessionCancelled marks a cancelled session outcome. The partial
// text accumulated before cancellation is always preserved.
var ErrSessionCancelled = errors.New("generation session cancelled")

// Session owns one streamed generation call. Text deltas are appended
// to the accumulator in strict arrival order and are observable while
// the stream is still running, via both Deltas and Text.
type Session struct {
	mu      sync.Mutex
	state   SessionState
	builder strings.Builder
	err     error

	decoder FrameDecoder
	deltas  chan string
	done    chan struct{}

	cancelOnce sync.Once
}

// NewSession creates an idle session over an opened frame decoder
func NewSession(decoder FrameDecoder) *Session {
	return &Session{
		state:   StateIdle,
		decoder: decoder,
		deltas:  make(chan string, 16),
		done:    make(chan struct{}),
	}
}

// Start begins consuming frames. It may be called once.
func (s *Session) Start() {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateStreaming
	s.mu.Unlock()

	go s.consume()
}

func (s *Session) consume() {
	defer close(s.done)
	defer close(s.deltas)
	defer s.decoder.Close()

	for {
		frame, err := s.decoder.Next()
		if err != nil {
			s.finish(err)
			return
		}

		switch frame.Type {
		case FrameDelta:
			if !s.append(frame.Text) {
				return
			}
		case FrameError:
			s.finish(errors.New(frame.Text))
			return
		case FrameDone:
			s.finish(nil)
			return
		}
	}
}

// append applies a delta under the lock so readers never observe a
// partially written accumulator. Returns false once the session left
// the streaming state (cancelled underneath the reader).
func (s *Session) append(text string) bool {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}
	s.builder.WriteString(text)
	s.mu.Unlock()

	select {
	case s.deltas <- text:
	default:
		// Slow consumer: the accumulator is authoritative, a skipped
		// notification only delays rendering
	}
	return true
}

func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return
	}
	if err == nil {
		s.state = StateCompleted
		return
	}
	// A decoder torn down by Cancel surfaces as a read error; keep the
	// cancelled outcome in that case
	if errors.Is(err, io.EOF) {
		s.state = StateCompleted
		return
	}
	s.state = StateFailed
	s.err = err
}

// Cancel tears down the underlying connection. The accumulator keeps
// whatever text had arrived. Safe to call from any goroutine, any
// number of times, in any state.
func (s *Session) Cancel() {
	s.cancelOnce.Do(func() {
		s.mu.Lock()
		idle := s.state == StateIdle
		if s.state == StateStreaming || s.state == StateIdle {
			s.state = StateCancelled
			s.err = ErrSessionCancelled
		}
		if idle {
			// Start will no-op from here on, so no consumer goroutine
			// ever runs; waiters must be released now
			close(s.deltas)
			close(s.done)
		}
		s.mu.Unlock()
		s.decoder.Close()
	})
}

// Deltas exposes text fragments as they arrive. The channel is closed
// when the session reaches a terminal state.
func (s *Session) Deltas() <-chan string {
	return s.deltas
}

// Text returns a consistent snapshot of the accumulated output
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.String()
}

// State returns the current session state
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the session terminates and returns the final
// accumulator, which is meaningful in every outcome: completed text,
// partial text with the failure, or partial text with
// ErrSessionCancelled.
func (s *Session) Wait() (string, SessionState, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.builder.String(), s.state, s.err
}

// Slot serializes sessions for one logical generation request:
// starting a new session implicitly cancels the previous one.
type Slot struct {
	mu      sync.Mutex
	current *Session
}

// Start cancels any active session and begins a new one over decoder
func (sl *Slot) Start(decoder FrameDecoder) *Session {
	sl.mu.Lock()
	prev := sl.current
	session := NewSession(decoder)
	sl.current = session
	sl.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}
	session.Start()
	return session
}

// Cancel cancels the active session, if any
func (sl *Slot) Cancel() {
	sl.mu.Lock()
	current := sl.current
	sl.mu.Unlock()
	if current != nil {
		current.Cancel()
	}
}
