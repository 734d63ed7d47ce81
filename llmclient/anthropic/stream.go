package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/bagofwords/agentcore/llmclient"
)

// streamer adapts an Anthropic Messages streaming response to
// llmclient.Streamer, buffering partial tool_use JSON by content-block index
// the way features/model/anthropic/stream.go's toolBuffer does.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]

	chunks chan llmclient.Chunk

	mu       sync.Mutex
	err      error
	errSet   bool
	toolBuf  map[int]*toolBuffer
	nameMap  map[string]string
}

type toolBuffer struct {
	id        string
	name      string
	fragments strings.Builder
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], nameMap map[string]string) llmclient.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:     cctx,
		cancel:  cancel,
		stream:  stream,
		chunks:  make(chan llmclient.Chunk, 32),
		toolBuf: make(map[int]*toolBuffer),
		nameMap: nameMap,
	}
	go s.run()
	return s
}

func (s *streamer) Recv() (llmclient.Chunk, error) {
	select {
	case c, ok := <-s.chunks:
		if ok {
			return c, nil
		}
		if err := s.getErr(); err != nil {
			return llmclient.Chunk{}, err
		}
		return llmclient.Chunk{}, io.EOF
	case <-s.ctx.Done():
		s.setErr(s.ctx.Err())
		return llmclient.Chunk{}, s.ctx.Err()
	}
}

func (s *streamer) Close() error {
	s.cancel()
	if s.stream == nil {
		return nil
	}
	return s.stream.Close()
}

func (s *streamer) run() {
	defer close(s.chunks)
	defer func() {
		if s.stream != nil {
			_ = s.stream.Close()
		}
	}()
	for s.stream.Next() {
		if err := s.handle(s.stream.Current()); err != nil {
			s.setErr(err)
			return
		}
		if s.ctx.Err() != nil {
			s.setErr(s.ctx.Err())
			return
		}
	}
	if err := s.stream.Err(); err != nil {
		s.setErr(err)
	}
}

func (s *streamer) handle(event sdk.MessageStreamEventUnion) error {
	switch ev := event.AsAny().(type) {
	case sdk.MessageStartEvent:
		s.toolBuf = make(map[int]*toolBuffer)
		return nil
	case sdk.ContentBlockStartEvent:
		idx := int(ev.Index)
		if toolUse, ok := ev.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
			name := toolUse.Name
			if canonical, ok := s.nameMap[name]; ok {
				name = canonical
			}
			s.toolBuf[idx] = &toolBuffer{id: toolUse.ID, name: name}
		}
		return nil
	case sdk.ContentBlockDeltaEvent:
		idx := int(ev.Index)
		switch delta := ev.Delta.AsAny().(type) {
		case sdk.TextDelta:
			if delta.Text == "" {
				return nil
			}
			return s.emit(llmclient.Chunk{
				Type: llmclient.ChunkTypeText,
				Message: &llmclient.Message{
					Role:  llmclient.ConversationRoleAssistant,
					Parts: []llmclient.Part{llmclient.TextPart{Text: delta.Text}},
				},
			})
		case sdk.ThinkingDelta:
			if delta.Thinking == "" {
				return nil
			}
			return s.emit(llmclient.Chunk{Type: llmclient.ChunkTypeThinking, Thinking: delta.Thinking})
		case sdk.InputJSONDelta:
			if tb := s.toolBuf[idx]; tb != nil {
				tb.fragments.WriteString(delta.PartialJSON)
			}
			return nil
		default:
			return nil
		}
	case sdk.ContentBlockStopEvent:
		idx := int(ev.Index)
		tb := s.toolBuf[idx]
		if tb == nil {
			return nil
		}
		delete(s.toolBuf, idx)
		return s.emit(llmclient.Chunk{
			Type:     llmclient.ChunkTypeToolCall,
			ToolCall: &llmclient.ToolCall{Name: tb.name, ID: tb.id, Payload: decodeToolPayload(tb.fragments.String())},
		})
	case sdk.MessageDeltaEvent:
		chunk := llmclient.Chunk{Type: llmclient.ChunkTypeStop, StopReason: string(ev.Delta.StopReason)}
		if u := ev.Usage; u.OutputTokens != 0 || u.InputTokens != 0 {
			chunk.UsageDelta = &llmclient.TokenUsage{
				InputTokens:  int(u.InputTokens),
				OutputTokens: int(u.OutputTokens),
			}
		}
		return s.emit(chunk)
	case sdk.MessageStopEvent:
		return nil
	default:
		return nil
	}
}

func decodeToolPayload(raw string) json.RawMessage {
	if raw == "" {
		return json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

func (s *streamer) emit(c llmclient.Chunk) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case s.chunks <- c:
		return nil
	}
}

func (s *streamer) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errSet {
		return
	}
	s.errSet = true
	if err != nil && !errors.Is(err, context.Canceled) {
		s.err = err
	}
}

func (s *streamer) getErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
