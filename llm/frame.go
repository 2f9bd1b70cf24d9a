package llm

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// FrameType classifies one event frame from the generation stream
type FrameType int

const (
	// FrameDelta carries an incremental text fragment
	FrameDelta FrameType = iota
	// FrameError carries an in-band error signal from the backend
	FrameError
	// FrameDone marks the end of a successful stream
	FrameDone
)

// Frame is one decoded event from the generation stream
type Frame struct {
	Type FrameType
	Text string // delta text, or the error message for FrameError
}

// FrameDecoder parses one frame at a time from an event stream. Next
// blocks until a frame is available; after FrameDone or an error the
// decoder is exhausted. Close releases the underlying connection and
// may be called concurrently with Next.
type FrameDecoder interface {
	Next() (Frame, error)
	Close() error
}

// sseFrame mirrors the generation endpoint's streamed chunk payload
type sseFrame struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// sseDecoder decodes line-oriented server-sent event frames.
// Only "data:" lines carry payloads; everything else is framing noise.
type sseDecoder struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// NewSSEDecoder wraps a response body in a frame decoder
func NewSSEDecoder(body io.ReadCloser) FrameDecoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseDecoder{body: body, scanner: scanner}
}

func (d *sseDecoder) Next() (Frame, error) {
	if d.done {
		return Frame{}, io.EOF
	}

	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk sseFrame
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return Frame{}, fmt.Errorf("malformed stream frame: %w", err)
		}

		if chunk.Error.Message != "" {
			d.done = true
			return Frame{Type: FrameError, Text: chunk.Error.Message}, nil
		}

		var text strings.Builder
		finished := false
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				text.WriteString(part.Text)
			}
			if cand.FinishReason != "" && cand.FinishReason != "STOP" {
				d.done = true
				return Frame{Type: FrameError, Text: "generation stopped: " + cand.FinishReason}, nil
			}
			if cand.FinishReason == "STOP" {
				finished = true
			}
		}

		if text.Len() > 0 {
			// A trailing delta on the STOP chunk is delivered first; the
			// terminal frame follows once the scanner hits EOF
			return Frame{Type: FrameDelta, Text: text.String()}, nil
		}
		if finished {
			d.done = true
			return Frame{Type: FrameDone}, nil
		}
	}

	if err := d.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("stream read failed: %w", err)
	}

	// Clean EOF terminates the stream
	d.done = true
	return Frame{Type: FrameDone}, nil
}

func (d *sseDecoder) Close() error {
	err := d.body.Close()
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}
