package llm

import (
	"context"
	"io"
	"regexp"
	"time"
)

var wordChunk = regexp.MustCompile(`^\s*\S+\s+`)

// Smooth re-chunks text deltas into words and waits delay before each word.
// Non-text chunks flush any buffered text first.
func Smooth(ctx context.Context, inner Stream, delay time.Duration) Stream {
	return &smoothStream{ctx: ctx, inner: inner, delay: delay}
}

type smoothStream struct {
	ctx   context.Context
	inner Stream
	delay time.Duration
	buf   string
	queue []Chunk
	done  bool
}

func (s *smoothStream) Recv() (Chunk, error) {
	for {
		if len(s.queue) > 0 {
			chunk := s.queue[0]
			s.queue = s.queue[1:]
			if chunk.Type == ChunkTextDelta && s.delay > 0 {
				if err := s.wait(); err != nil {
					return Chunk{}, err
				}
			}
			return chunk, nil
		}
		if s.done {
			return Chunk{}, io.EOF
		}

		chunk, err := s.inner.Recv()
		if err == io.EOF {
			s.flushText()
			s.done = true
			continue
		}
		if err != nil {
			return Chunk{}, err
		}
		if chunk.Type != ChunkTextDelta {
			s.flushText()
			s.queue = append(s.queue, chunk)
			continue
		}
		s.buf += chunk.Text
		for {
			match := wordChunk.FindString(s.buf)
			if match == "" {
				break
			}
			s.queue = append(s.queue, Chunk{Type: ChunkTextDelta, Text: match})
			s.buf = s.buf[len(match):]
		}
	}
}

func (s *smoothStream) flushText() {
	if s.buf == "" {
		return
	}
	s.queue = append(s.queue, Chunk{Type: ChunkTextDelta, Text: s.buf})
	s.buf = ""
}

func (s *smoothStream) wait() error {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *smoothStream) Close() error {
	return s.inner.Close()
}
