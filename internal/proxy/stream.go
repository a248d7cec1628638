// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package proxy

import (
	"bufio"
	"context"
	"io"
)

// =============================================================================
// STREAM READER
// =============================================================================

// StreamReader decodes a /chat NDJSON body into Events, one complete
// line at a time. Incomplete trailing fragments stay buffered until
// the next read; a fragment left at EOF is parsed as a final line.
// Malformed lines are dropped without ending the stream: a garbled
// frame must never abort an otherwise healthy turn.
type StreamReader struct {
	reader      *bufio.Reader
	sawTerminal bool
}

// NewStreamReader creates a stream reader over a response body.
func NewStreamReader(r io.Reader) *StreamReader {
	return &StreamReader{reader: bufio.NewReader(r)}
}

// Next returns the next decoded event. It returns io.EOF when the
// transport ends; if no done/error event was seen by then, it
// returns ErrNoTerminalEvent instead so the caller can surface the
// "no response" condition.
func (s *StreamReader) Next() (Event, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err != io.EOF {
				return nil, err
			}
			if len(line) == 0 {
				if s.sawTerminal {
					return nil, io.EOF
				}
				return nil, ErrNoTerminalEvent
			}
			// Fall through: parse the unterminated final fragment.
		}

		ev, ok := parseEvent(trimLine(line))
		if !ok {
			if err == io.EOF {
				if s.sawTerminal {
					return nil, io.EOF
				}
				return nil, ErrNoTerminalEvent
			}
			continue
		}
		if IsTerminal(ev) {
			s.sawTerminal = true
		}
		return ev, nil
	}
}

// Process reads the stream to completion, calling fn for each event
// in arrival order. It stops after the first terminal event without
// draining the rest of the body (the request context is cancelled by
// the caller, which closes the transport). Returns nil on a terminal
// event, ErrNoTerminalEvent on clean EOF without one, or the
// transport/context error.
func (s *StreamReader) Process(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, err := s.Next()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// Prefer the context error so user cancellation is never
			// misreported as a network failure.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		fn(ev)
		if IsTerminal(ev) {
			return nil
		}
	}
}

// trimLine strips the trailing newline and optional carriage return.
func trimLine(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}
