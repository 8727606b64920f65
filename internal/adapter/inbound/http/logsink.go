package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// handleLog accepts a client log record and appends it to the configured
// sink as one JSON line. Records are accepted (and discarded) even with no
// sink, so clients need no capability probing.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	var record json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, errValidation, "invalid JSON body: "+err.Error())
		return
	}

	if s.logSink != nil {
		if err := writeLogLine(s.logSink, record); err != nil {
			// Sink failures are the broker's problem, not the client's.
			LoggerFromContext(r.Context()).Warn("log sink write failed", "error", err)
		}
	}

	writeJSON(w, okBody)
}

// writeLogLine compacts the record onto a single line and appends a newline.
func writeLogLine(sink io.Writer, record json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := sink.Write(buf.Bytes())
	return err
}
