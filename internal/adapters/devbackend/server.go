// Package devbackend serves the records REST API from SQLite for local
// development and browser tests.
package devbackend

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	recstore "coursedesk/internal/adapters/storage/record"
	"coursedesk/internal/domain/record"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Options configures the development backend.
type Options struct {
	// RequiredCookie, when set, must appear verbatim in the Cookie header
	// ("name=value"), mimicking the real backend's session check.
	RequiredCookie string
}

// Server implements /rest/apps/{app}/records on top of a record store.
type Server struct {
	store  recstore.Store
	cookie string
}

// NewHandler returns the backend's HTTP handler.
// PRE: store is non-nil
// POST: Routes are registered under /rest/apps/
func NewHandler(store recstore.Store, opts Options) http.Handler {
	s := &Server{store: store, cookie: opts.RequiredCookie}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/apps/{app}/records", s.handleList)
	mux.HandleFunc("POST /rest/apps/{app}/records", s.handleCreate)
	mux.HandleFunc("GET /rest/apps/{app}/records/{id}", s.handleGet)
	mux.HandleFunc("PATCH /rest/apps/{app}/records/{id}", s.handleUpdate)
	mux.HandleFunc("PUT /rest/apps/{app}/records/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /rest/apps/{app}/records/{id}", s.handleDelete)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return s.requireSession(mux)
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cookie != "" && r.URL.Path != "/healthz" && !hasCookie(r, s.cookie) {
			writeError(w, http.StatusUnauthorized, "session required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func hasCookie(r *http.Request, pair string) bool {
	name, value, ok := strings.Cut(pair, "=")
	if !ok {
		return false
	}
	c, err := r.Cookie(strings.TrimSpace(name))
	return err == nil && c.Value == strings.TrimSpace(value)
}

// handleList writes the collection as an id-keyed object in insertion order.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context(), r.PathValue("app"))
	if err != nil {
		s.internal(w, "list", err)
		return
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, rec := range recs {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(rec.ID)
		val, err := json.Marshal(toWire(rec, false))
		if err != nil {
			s.internal(w, "list", err)
			return
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')

	w.Header().Set("Content-Type", "application/json")
	w.Write(buf.Bytes())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.GetByID(r.Context(), r.PathValue("app"), r.PathValue("id"))
	if err != nil {
		s.storeError(w, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, toWire(rec, true))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Insert(r.Context(), r.PathValue("app"), fields)
	if err != nil {
		s.internal(w, "create", err)
		return
	}
	slog.Debug("devbackend_record_created", "app_id", r.PathValue("app"), "record_id", rec.ID)
	writeJSON(w, http.StatusOK, toWire(rec, true))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	fields, ok := readFields(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Merge(r.Context(), r.PathValue("app"), r.PathValue("id"), fields)
	if err != nil {
		s.storeError(w, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, toWire(rec, true))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("app"), r.PathValue("id")); err != nil {
		s.storeError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readFields(w http.ResponseWriter, r *http.Request) (record.Fields, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return nil, false
	}
	var body struct {
		Fields record.Fields `json:"fields"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be {\"fields\": {...}}")
		return nil, false
	}
	if body.Fields == nil {
		body.Fields = record.Fields{}
	}
	return body.Fields, true
}

func toWire(rec record.Record, withID bool) record.Wire {
	w := record.Wire{
		CreatedAt: rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
		Fields:    rec.Fields,
	}
	if withID {
		w.ID = rec.ID
	}
	if rec.UpdatedAt != nil {
		u := rec.UpdatedAt.UTC().Format("2006-01-02 15:04:05")
		w.UpdatedAt = &u
	}
	if w.Fields == nil {
		w.Fields = record.Fields{}
	}
	return w
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, recstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	s.internal(w, op, err)
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	slog.Error("devbackend_error", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("devbackend_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
