package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcpglass/mcpglass/internal/adapter/outbound/storage"
)

// maxStorageDocSize caps a stored document. OAuth state documents are tiny;
// the cap only guards against runaway clients.
const maxStorageDocSize = 1 << 20 // 1MB

// handleStorageGet returns the stored document, or "{}" when none exists.
func (s *Server) handleStorageGet(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["storeId"]
	doc, err := s.store.Get(storeID)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(doc)
}

// handleStoragePut replaces the stored document atomically.
func (s *Server) handleStoragePut(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["storeId"]

	body, err := io.ReadAll(io.LimitReader(r.Body, maxStorageDocSize+1))
	if err != nil {
		writeError(w, http.StatusInternalServerError, errInternal, err.Error())
		return
	}
	if len(body) > maxStorageDocSize {
		writeError(w, http.StatusBadRequest, errValidation, "document too large")
		return
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, errValidation, "body must be valid JSON")
		return
	}

	if err := s.store.Put(storeID, body); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, okBody)
}

// handleStorageDelete removes the stored document. Idempotent.
func (s *Server) handleStorageDelete(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["storeId"]
	if err := s.store.Delete(storeID); err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, okBody)
}

// writeStorageError maps store failures: an illegal ID is the client's
// fault, everything else is internal.
func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrInvalidStoreID) {
		writeError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, errInternal, err.Error())
}
