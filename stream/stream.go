// Package stream multiplexes bus events onto one or more client-facing
// sinks (SSE, WebSocket, or any other transport), per spec.md C1/§6. A Sink
// receives the exact wire frame named in spec.md §6:
// {event, completion_id, agent_execution_id, seq, data}, terminated by a
// completion.finished frame.
package stream

import (
	"context"
	"sync"

	"github.com/bagofwords/agentcore/bus"
)

// EventType constants are the opaque event-name vocabulary from spec.md
// §4.1. Clients filter by name; the core never overloads one name for two
// semantically different payloads.
const (
	EventDecisionPartial   = "decision.partial"
	EventDecisionFinal     = "decision.final"
	EventBlockUpsert       = "block.upsert"
	EventBlockDeltaArtifact = "block.delta.artifact"
	EventToolStarted       = "tool.started"
	EventToolProgress      = "tool.progress"
	EventToolPartial       = "tool.partial"
	EventToolStdout        = "tool.stdout"
	EventToolFinished      = "tool.finished"
	EventPlannerRetry      = "planner.retry"
	EventCompletionStarted = "completion.started"
	EventCompletionFinished = "completion.finished"
	EventCompletionError   = "completion.error"
	EventQueryCreated      = "query.created"
	EventVisualizationCreated = "visualization.created"
	EventVisualizationUpdated = "visualization.updated"
	EventInstructionsSuggestStarted  = "instructions.suggest.started"
	EventInstructionsSuggestPartial  = "instructions.suggest.partial"
	EventInstructionsSuggestFinished = "instructions.suggest.finished"
)

// Frame is the wire shape delivered to a Sink, matching spec.md §6 exactly.
type Frame struct {
	Event            string `json:"event"`
	CompletionID     string `json:"completion_id"`
	AgentExecutionID string `json:"agent_execution_id"`
	Seq              int    `json:"seq"`
	Data             any    `json:"data"`
}

// Sink delivers wire frames to a transport. Implementations must be
// thread-safe: Multiplexer may call Send concurrently for distinct runs.
type Sink interface {
	Send(ctx context.Context, frame Frame) error
	Close(ctx context.Context) error
}

// Profile filters which event names a Sink wants to receive. A nil/empty
// Allow set means "all events" (the default, unrestricted profile).
type Profile struct {
	Allow map[string]bool
}

// DefaultProfile admits every event name defined in spec.md §4.1.
func DefaultProfile() Profile { return Profile{} }

// UserChatProfile admits only the events a chat UI renders directly,
// dropping progress/stdout chatter a typical client ignores.
func UserChatProfile() Profile {
	return Profile{Allow: map[string]bool{
		EventDecisionPartial:    true,
		EventDecisionFinal:      true,
		EventBlockUpsert:        true,
		EventBlockDeltaArtifact: true,
		EventToolStarted:        true,
		EventToolFinished:       true,
		EventCompletionStarted:  true,
		EventCompletionFinished: true,
		EventCompletionError:    true,
		EventQueryCreated:       true,
		EventVisualizationCreated: true,
		EventVisualizationUpdated: true,
	}}
}

func (p Profile) admits(eventType string) bool {
	if len(p.Allow) == 0 {
		return true
	}
	return p.Allow[eventType]
}

// Multiplexer bridges bus.Bus events to a set of registered Sinks, applying
// each Sink's Profile before Send. It implements bus.Subscriber so it can be
// registered directly on a bus.Bus.
type Multiplexer struct {
	mu    sync.RWMutex
	sinks map[*subscription]registeredSink
}

type registeredSink struct {
	sink    Sink
	profile Profile
}

type subscription struct {
	m    *Multiplexer
	once sync.Once
}

// NewMultiplexer constructs an empty Multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{sinks: make(map[*subscription]registeredSink)}
}

// Subscribe registers sink to receive frames matching profile. The returned
// closer unregisters the sink; it is idempotent.
func (m *Multiplexer) Subscribe(sink Sink, profile Profile) func() {
	s := &subscription{m: m}
	m.mu.Lock()
	m.sinks[s] = registeredSink{sink: sink, profile: profile}
	m.mu.Unlock()
	return func() {
		s.once.Do(func() {
			m.mu.Lock()
			delete(m.sinks, s)
			m.mu.Unlock()
		})
	}
}

// HandleEvent implements bus.Subscriber: it converts a bus.Event into a
// Frame and fans it out to every admitting sink. Unlike bus.Bus.Publish,
// a single sink's delivery error does not stop delivery to other sinks —
// the stream layer is explicitly best-effort per client connection, while
// the internal bus remains fail-fast for persistence-critical subscribers.
func (m *Multiplexer) HandleEvent(ctx context.Context, event bus.Event) error {
	frame := Frame{
		Event:            event.Type,
		CompletionID:     event.CompletionID,
		AgentExecutionID: event.AgentExecutionID,
		Seq:              event.Seq,
		Data:             event.Data,
	}
	m.mu.RLock()
	targets := make([]registeredSink, 0, len(m.sinks))
	for _, rs := range m.sinks {
		if rs.profile.admits(event.Type) {
			targets = append(targets, rs)
		}
	}
	m.mu.RUnlock()
	for _, rs := range targets {
		_ = rs.sink.Send(ctx, frame)
	}
	return nil
}
