// Package streamer implements the throttled text streamer (spec.md C8): it
// maintains per-block reasoning/content caches and emits only the newly
// appended suffix since the last emission, coalescing updates within a
// ~120ms window and always flushing on Complete. Grounded on the
// delta-computation idiom in runtime/agent/stream/stream.go's incremental
// AssistantReply/PlannerThought events, generalized into a standalone
// throttling component since the teacher emits deltas inline rather than
// through a dedicated throttler.
package streamer

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow is the ~120ms coalescing window spec.md §4.8 names.
const DefaultWindow = 120 * time.Millisecond

// Delta is one block.delta.artifact payload. When Replace is true the
// consumer must discard prior content and use Text verbatim (the new
// string was not a prefix-extension of the previous one); otherwise Text is
// the suffix to append.
type Delta struct {
	BlockID          string
	ReasoningText    string
	ReasoningReplace bool
	ContentText      string
	ContentReplace   bool
}

// Streamer throttles (reasoning, content) snapshot updates for one block
// into delta emissions. Not safe to share across blocks; call SetBlock to
// rebind to a newly materialized block id.
type Streamer struct {
	mu     sync.Mutex
	blockID string
	emit    func(Delta)
	window  time.Duration

	emittedReasoning, emittedContent string
	pendingReasoning, pendingContent string
	hasPending                       bool
	timer                            *time.Timer
}

// New constructs a Streamer bound to blockID, emitting deltas via emit.
// window <= 0 uses DefaultWindow.
func New(blockID string, emit func(Delta), window time.Duration) *Streamer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Streamer{blockID: blockID, emit: emit, window: window}
}

// SetBlock rebinds the streamer to a newly materialized block, used when
// pre-creation fails and a block is created only on the first partial
// decision (spec.md §4.8). It does not reset emitted caches: a rebind mid-
// stream still computes deltas against whatever was already emitted.
func (s *Streamer) SetBlock(blockID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockID = blockID
}

// Update records a new (reasoning, content) snapshot and schedules a
// throttled emission. Multiple calls within the coalescing window collapse
// into a single emitted delta reflecting only the latest snapshot.
func (s *Streamer) Update(reasoning, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReasoning = reasoning
	s.pendingContent = content
	s.hasPending = true
	if s.timer == nil {
		s.timer = time.AfterFunc(s.window, s.flush)
	}
}

// Complete cancels any pending timer and flushes immediately, guaranteeing
// the final snapshot is always emitted even if it arrived within the last
// coalescing window (spec.md §4.8: "always flush on complete()").
func (s *Streamer) Complete() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.flush()
}

func (s *Streamer) flush() {
	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return
	}
	reasoning, content := s.pendingReasoning, s.pendingContent
	s.hasPending = false
	s.timer = nil
	blockID := s.blockID
	reasoningDelta, reasoningReplace := computeDelta(s.emittedReasoning, reasoning)
	contentDelta, contentReplace := computeDelta(s.emittedContent, content)
	s.emittedReasoning = reasoning
	s.emittedContent = content
	s.mu.Unlock()

	if reasoningDelta == "" && contentDelta == "" && !reasoningReplace && !contentReplace {
		return
	}
	s.emit(Delta{
		BlockID:          blockID,
		ReasoningText:    reasoningDelta,
		ReasoningReplace: reasoningReplace,
		ContentText:      contentDelta,
		ContentReplace:   contentReplace,
	})
}

// computeDelta implements spec.md §4.8's prefix-diff rule: if new extends
// old, the delta is the appended suffix; otherwise it's a full replace.
func computeDelta(old, new string) (text string, replace bool) {
	if old == new {
		return "", false
	}
	if strings.HasPrefix(new, old) {
		return new[len(old):], false
	}
	return new, true
}
