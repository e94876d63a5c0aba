// Package sse reads and writes text/event-stream frames.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kushalX13/CurbKey/internal/models"
)

const (
	ContentType = "text/event-stream"
	EventStatus = "status"
)

type Event struct {
	ID   int64
	Name string
	Data []byte
}

// Write emits one frame. Data containing newlines is split across data lines.
func Write(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.ID > 0 {
		fmt.Fprintf(&buf, "id: %d\n", ev.ID)
	}
	if ev.Name != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Name)
	}
	for _, line := range strings.Split(string(ev.Data), "\n") {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteComment emits a comment frame, used as a keepalive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

func WriteStatus(w io.Writer, ev models.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return Write(w, Event{ID: ev.ID, Name: EventStatus, Data: data})
}

// DecodeStatus parses the payload of a status frame.
func DecodeStatus(ev Event) (models.StatusEvent, error) {
	var status models.StatusEvent
	if err := json.Unmarshal(ev.Data, &status); err != nil {
		return models.StatusEvent{}, fmt.Errorf("decode status event %d: %w", ev.ID, err)
	}
	if status.ID == 0 {
		status.ID = ev.ID
	}
	return status, nil
}

type Decoder struct {
	r *bufio.Reader
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next dispatched frame. Comment-only frames are skipped.
// io.EOF is returned once the stream ends between frames.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		hasData bool
		seen    bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			if err == io.EOF && seen {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData {
				ev.Data = []byte(strings.Join(data, "\n"))
				return ev, nil
			}
			ev, data, seen = Event{}, nil, false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		seen = true

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			if id, perr := strconv.ParseInt(value, 10, 64); perr == nil {
				ev.ID = id
			}
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		}
		if err == io.EOF {
			return Event{}, io.ErrUnexpectedEOF
		}
	}
}
