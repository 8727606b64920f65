package mcp

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	name string
	data string
}

// sseReader incrementally parses a text/event-stream body.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReaderSize(r, scannerInitialBufSize)}
}

// next reads the next event. Per the event-stream grammar, an event is
// dispatched at the first blank line; data lines accumulate with newline
// joins; comment lines (leading colon) are ignored. An event without a name
// defaults to "message". Returns io.EOF when the stream ends.
func (s *sseReader) next() (sseEvent, error) {
	ev := sseEvent{name: "message"}
	var data []string
	dispatched := false

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && dispatched {
				ev.data = strings.Join(data, "\n")
				return ev, nil
			}
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if dispatched {
				ev.data = strings.Join(data, "\n")
				return ev, nil
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			dispatched = true
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			dispatched = true
		case strings.HasPrefix(line, "id:") || strings.HasPrefix(line, "retry:"):
			// tracked by browsers for resumption; the broker relays live only
			dispatched = true
		}
	}
}
