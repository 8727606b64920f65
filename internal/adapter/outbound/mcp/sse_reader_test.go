package mcp

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream string
		want   []sseEvent
	}{
		{
			name:   "named event",
			stream: "event: endpoint\ndata: /rpc\n\n",
			want:   []sseEvent{{name: "endpoint", data: "/rpc"}},
		},
		{
			name:   "default name is message",
			stream: "data: {\"id\":1}\n\n",
			want:   []sseEvent{{name: "message", data: `{"id":1}`}},
		},
		{
			name:   "multi-line data joined with newline",
			stream: "data: line one\ndata: line two\n\n",
			want:   []sseEvent{{name: "message", data: "line one\nline two"}},
		},
		{
			name:   "comments and retry ignored",
			stream: ": keep-alive\nretry: 3000\ndata: x\n\n",
			want:   []sseEvent{{name: "message", data: "x"}},
		},
		{
			name:   "multiple events",
			stream: "event: a\ndata: 1\n\nevent: b\ndata: 2\n\n",
			want:   []sseEvent{{name: "a", data: "1"}, {name: "b", data: "2"}},
		},
		{
			name:   "crlf line endings",
			stream: "event: endpoint\r\ndata: /rpc\r\n\r\n",
			want:   []sseEvent{{name: "endpoint", data: "/rpc"}},
		},
		{
			name:   "final event without trailing blank line",
			stream: "data: tail\n",
			want:   []sseEvent{{name: "message", data: "tail"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newSSEReader(strings.NewReader(tt.stream))
			for i, want := range tt.want {
				ev, err := r.next()
				if err != nil {
					t.Fatalf("event %d: next() error = %v", i, err)
				}
				if ev != want {
					t.Errorf("event %d = %+v, want %+v", i, ev, want)
				}
			}
			if _, err := r.next(); !errors.Is(err, io.EOF) {
				t.Errorf("after last event next() error = %v, want io.EOF", err)
			}
		})
	}
}
