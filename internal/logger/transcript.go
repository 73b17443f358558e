// Package logger records session transcripts in asciinema v2 format.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// header is the first line of an asciinema v2 cast file.
type header struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Transcript writes a session's raw PTY traffic as an asciinema v2
// JSON-lines cast. Output events are type "o", input events type "i".
type Transcript struct {
	mu    sync.Mutex
	w     io.Writer
	file  *os.File // set only when the transcript owns the file
	start time.Time
}

// NewTranscript creates a cast file at path and writes the v2 header.
func NewTranscript(path string, cols, rows int) (*Transcript, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("logger: create transcript: %w", err)
	}

	tr := &Transcript{w: file, file: file, start: time.Now()}
	if err := tr.writeHeader(cols, rows); err != nil {
		file.Close()
		return nil, err
	}
	return tr, nil
}

// NewTranscriptWriter records to an arbitrary writer. Used by tests.
func NewTranscriptWriter(w io.Writer, cols, rows int) (*Transcript, error) {
	tr := &Transcript{w: w, start: time.Now()}
	if err := tr.writeHeader(cols, rows); err != nil {
		return nil, err
	}
	return tr, nil
}

func (t *Transcript) writeHeader(cols, rows int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: t.start.Unix(),
	})
	if err != nil {
		return fmt.Errorf("logger: marshal header: %w", err)
	}
	_, err = t.w.Write(append(data, '\n'))
	return err
}

// Output records agent output.
func (t *Transcript) Output(data []byte) error {
	return t.event("o", data)
}

// Input records data written to the agent.
func (t *Transcript) Input(data []byte) error {
	return t.event("i", data)
}

func (t *Transcript) event(kind string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Event lines are [offset_seconds, type, data] tuples.
	line, err := json.Marshal([]any{time.Since(t.start).Seconds(), kind, string(data)})
	if err != nil {
		return fmt.Errorf("logger: marshal event: %w", err)
	}
	_, err = t.w.Write(append(line, '\n'))
	return err
}

// Close closes the underlying file, if the transcript owns one.
func (t *Transcript) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file != nil {
		err := t.file.Close()
		t.file = nil
		return err
	}
	return nil
}
