package stream

import (
	"context"
	"testing"

	"github.com/bagofwords/agentcore/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	frames []Frame
}

func (r *recordingSink) Send(ctx context.Context, frame Frame) error {
	r.frames = append(r.frames, frame)
	return nil
}
func (r *recordingSink) Close(ctx context.Context) error { return nil }

func TestMultiplexerAppliesProfile(t *testing.T) {
	m := NewMultiplexer()
	chat := &recordingSink{}
	all := &recordingSink{}
	m.Subscribe(chat, UserChatProfile())
	m.Subscribe(all, DefaultProfile())

	require.NoError(t, m.HandleEvent(context.Background(), bus.Event{Type: EventToolProgress}))
	require.NoError(t, m.HandleEvent(context.Background(), bus.Event{Type: EventDecisionFinal}))

	assert.Len(t, chat.frames, 1)
	assert.Equal(t, EventDecisionFinal, chat.frames[0].Event)
	assert.Len(t, all.frames, 2)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMultiplexer()
	sink := &recordingSink{}
	unsub := m.Subscribe(sink, DefaultProfile())
	unsub()
	unsub()
	require.NoError(t, m.HandleEvent(context.Background(), bus.Event{Type: EventCompletionFinished}))
	assert.Empty(t, sink.frames)
}
