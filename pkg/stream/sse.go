package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"
)

const defaultEventType = "message"

// message is one dispatched server-sent event.
type message struct {
	ID    string
	Event string
	Data  []byte
}

// eventReader splits an event-stream body into messages following the
// WHATWG server-sent events parsing rules. It keeps the last event ID and the
// server-requested retry delay across messages.
type eventReader struct {
	r       *bufio.Reader
	started bool
	lastID  string
	retry   time.Duration
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// Next blocks until a complete message is available. A partial message at
// end of stream is discarded and io.EOF returned.
func (er *eventReader) Next() (message, error) {
	var (
		data      bytes.Buffer
		eventType string
		hasData   bool
	)

	for {
		line, err := er.readLine()
		if err != nil {
			return message{}, err
		}

		if line == "" {
			if !hasData {
				eventType = ""
				continue
			}
			if eventType == "" {
				eventType = defaultEventType
			}
			payload := bytes.TrimSuffix(data.Bytes(), []byte("\n"))
			return message{ID: er.lastID, Event: eventType, Data: append([]byte(nil), payload...)}, nil
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "data":
			data.WriteString(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				er.lastID = value
			}
		case "retry":
			if ms, err := strconv.ParseUint(value, 10, 32); err == nil {
				er.retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
}

// readLine returns one line without its terminator. A final line without a
// terminator is treated as end of stream.
func (er *eventReader) readLine() (string, error) {
	line, err := er.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", err
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if !er.started {
		line = strings.TrimPrefix(line, "\ufeff")
		er.started = true
	}
	return line, nil
}
