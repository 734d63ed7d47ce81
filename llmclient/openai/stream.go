package openai

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/bagofwords/agentcore/llmclient"
)

// streamer adapts the SSE chat-completion chunk stream to llmclient.Streamer,
// accumulating tool-call argument fragments by index the way OpenAI's
// delta-indexed tool_calls array requires.
type streamer struct {
	ctx    context.Context
	cancel context.CancelFunc
	stream *ssestream.Stream[openai.ChatCompletionChunk]

	chunks chan llmclient.Chunk

	mu      sync.Mutex
	err     error
	errSet  bool
	toolBuf map[int64]*toolAccum
}

type toolAccum struct {
	id   string
	name string
	args strings.Builder
}

func newStreamer(ctx context.Context, stream *ssestream.Stream[openai.ChatCompletionChunk]) llmclient.Streamer {
	cctx, cancel := context.WithCancel(ctx)
	s := &streamer{
		ctx:     cctx,
		cancel:  cancel,
		stream:  stream,
		chunks:  make(chan llmclient.Chunk, 32),
		toolBuf: make(map[int64]*toolAccum),
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

func (s *streamer) handle(chunk openai.ChatCompletionChunk) error {
	if len(chunk.Choices) == 0 {
		if chunk.Usage.TotalTokens != 0 {
			return s.emit(llmclient.Chunk{
				Type: llmclient.ChunkTypeUsage,
				UsageDelta: &llmclient.TokenUsage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
					TotalTokens:  int(chunk.Usage.TotalTokens),
				},
			})
		}
		return nil
	}
	choice := chunk.Choices[0]
	delta := choice.Delta

	if delta.Content != "" {
		if err := s.emit(llmclient.Chunk{
			Type: llmclient.ChunkTypeText,
			Message: &llmclient.Message{
				Role:  llmclient.ConversationRoleAssistant,
				Parts: []llmclient.Part{llmclient.TextPart{Text: delta.Content}},
			},
		}); err != nil {
			return err
		}
	}

	for _, tc := range delta.ToolCalls {
		acc := s.toolBuf[tc.Index]
		if acc == nil {
			acc = &toolAccum{}
			s.toolBuf[tc.Index] = acc
		}
		if tc.ID != "" {
			acc.id = tc.ID
		}
		if tc.Function.Name != "" {
			acc.name = tc.Function.Name
		}
		acc.args.WriteString(tc.Function.Arguments)
	}

	if choice.FinishReason != "" {
		for idx, acc := range s.toolBuf {
			if err := s.emit(llmclient.Chunk{
				Type:     llmclient.ChunkTypeToolCall,
				ToolCall: &llmclient.ToolCall{Name: acc.name, ID: acc.id, Payload: decodeArgs(acc.args.String())},
			}); err != nil {
				return err
			}
			delete(s.toolBuf, idx)
		}
		return s.emit(llmclient.Chunk{Type: llmclient.ChunkTypeStop, StopReason: string(choice.FinishReason)})
	}
	return nil
}

func decodeArgs(raw string) json.RawMessage {
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
	s.err = err
}

func (s *streamer) getErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
