// Package llmtest provides a scripted llm.Provider for tests.
package llmtest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Keyring-Network/keyring-gavryn/trip-planner/internal/llm"
)

// Turn is one scripted provider answer. Either Chunks (for Stream), Message
// (for Generate) or Err is used.
type Turn struct {
	Chunks  []llm.Chunk
	Message llm.Message
	Err     error
	// StreamErr is returned by Recv after Chunks are drained.
	StreamErr error
}

// Provider replays Turns in order and records every request.
type Provider struct {
	mu        sync.Mutex
	streams   []Turn
	generates []Turn
	Requests  []llm.Request
	Generated []llm.Request
}

func NewProvider() *Provider {
	return &Provider{}
}

func (p *Provider) OnStream(turns ...Turn) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams = append(p.streams, turns...)
	return p
}

func (p *Provider) OnGenerate(turns ...Turn) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generates = append(p.generates, turns...)
	return p
}

func (p *Provider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	if len(p.streams) == 0 {
		return nil, errors.New("llmtest: unexpected Stream call")
	}
	turn := p.streams[0]
	p.streams = p.streams[1:]
	if turn.Err != nil {
		return nil, turn.Err
	}
	return NewStream(turn.StreamErr, turn.Chunks...), nil
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (llm.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Generated = append(p.Generated, req)
	if len(p.generates) == 0 {
		return llm.Message{}, errors.New("llmtest: unexpected Generate call")
	}
	turn := p.generates[0]
	p.generates = p.generates[1:]
	return turn.Message, turn.Err
}

// StreamCalls returns a copy of the recorded Stream requests.
func (p *Provider) StreamCalls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.Requests...)
}

// GenerateCalls returns a copy of the recorded Generate requests.
func (p *Provider) GenerateCalls() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.Request(nil), p.Generated...)
}

// NewStream returns a stream yielding chunks, then err (or io.EOF).
func NewStream(err error, chunks ...llm.Chunk) llm.Stream {
	return &sliceStream{chunks: chunks, err: err}
}

type sliceStream struct {
	chunks []llm.Chunk
	err    error
	closed bool
}

func (s *sliceStream) Recv() (llm.Chunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return llm.Chunk{}, s.err
		}
		return llm.Chunk{}, io.EOF
	}
	chunk := s.chunks[0]
	s.chunks = s.chunks[1:]
	return chunk, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

func Text(text string) llm.Chunk {
	return llm.Chunk{Type: llm.ChunkTextDelta, Text: text}
}

func Call(id, name, args string) llm.Chunk {
	return llm.Chunk{Type: llm.ChunkToolCall, ToolCall: &llm.ToolCall{ID: id, Name: name, Arguments: args}}
}

func Finish(reason string) llm.Chunk {
	return llm.Chunk{Type: llm.ChunkFinish, FinishReason: reason}
}
