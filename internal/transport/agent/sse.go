package agent

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/havenstack/widgetd/internal/shared/types"
)

// maxLine bounds a single SSE line; structured results can be large.
const maxLine = 1 << 20

// wirePayload is the JSON body of one SSE data line.
type wirePayload struct {
	RequestID string                 `json:"request_id"`
	Text      string                 `json:"text"`
	Progress  *types.Progress        `json:"progress"`
	Result    map[string]interface{} `json:"result"`
	Message   string                 `json:"message"`
}

// eventKind maps SSE event names to stream event kinds.
func eventKind(name string) (types.EventKind, bool) {
	switch name {
	case "start":
		return types.EventStart, true
	case "token":
		return types.EventToken, true
	case "progress":
		return types.EventProgress, true
	case "result":
		return types.EventResult, true
	case "end":
		return types.EventEnd, true
	case "error":
		return types.EventError, true
	}
	return "", false
}

// readStream parses server-sent events from r and sends them on events
// until a terminal event, EOF, or a read error. Frames with unknown
// event names are skipped; a payload without a request id inherits the
// dispatched one.
func readStream(r io.Reader, requestID string, events chan<- types.StreamEvent) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)

	var eventName string
	var data strings.Builder

	flush := func() bool {
		defer func() {
			eventName = ""
			data.Reset()
		}()

		kind, ok := eventKind(eventName)
		if !ok || data.Len() == 0 {
			return false
		}

		var payload wirePayload
		if err := json.Unmarshal([]byte(data.String()), &payload); err != nil {
			return false
		}
		if payload.RequestID == "" {
			payload.RequestID = requestID
		}

		events <- types.StreamEvent{
			Kind:      kind,
			RequestID: payload.RequestID,
			Text:      payload.Text,
			Progress:  payload.Progress,
			Result:    payload.Result,
			Message:   payload.Message,
		}
		return kind.Terminal()
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if flush() {
				return nil
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		}
	}

	// Final frame without a trailing blank line.
	flush()
	return scanner.Err()
}
