package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soapscribe/soapscribe/internal/identity"
	"github.com/soapscribe/soapscribe/internal/observe"
)

// getSession handles GET /api/session.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller(r).Snapshot())
}

// startRecording handles POST /api/session/record. The controller owns the
// active-recordings gauge, so no metric accounting happens here.
func (s *Server) startRecording(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	if err := ctrl.StartRecording(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// stopRecording handles DELETE /api/session/record. Finalizes the capture and
// runs transcription; the response snapshot carries the transcript.
func (s *Server) stopRecording(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	if err := ctrl.StopRecording(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// setTranscript handles PUT /api/session/transcript.
func (s *Server) setTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ctrl := s.controller(r)
	if err := ctrl.SetTranscript(req.Transcript); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// setTemplate handles PUT /api/session/template.
func (s *Server) setTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ctrl := s.controller(r)
	if err := ctrl.SetTemplate(req.Template); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// generate handles POST /api/session/generate.
func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	if err := ctrl.Generate(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// editNote handles PUT /api/session/note.
func (s *Server) editNote(w http.ResponseWriter, r *http.Request) {
	var req noteBodyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	ctrl := s.controller(r)
	if err := ctrl.EditBody(req.Body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// save handles POST /api/session/save.
func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctrl := s.controller(r)
	wasNew := !ctrl.Snapshot().Saved
	if err := ctrl.Save(r.Context(), req.SubjectName, req.Approve); err != nil {
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		op := "update"
		if wasNew {
			op = "create"
		}
		s.metrics.RecordNoteSaved(r.Context(), op)
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// openExisting handles POST /api/session/open/{id}.
func (s *Server) openExisting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	ctrl := s.controller(r)
	if err := ctrl.OpenExisting(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// abandon handles POST /api/session/abandon.
func (s *Server) abandon(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)
	ctrl.Abandon()
	writeJSON(w, http.StatusOK, ctrl.Snapshot())
}

// listNotes handles GET /api/notes.
func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	owner := s.owner(r)
	if owner == "" || s.store == nil {
		writeError(w, identity.ErrNoIdentity)
		return
	}
	records, err := s.store.ListByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// patchNote handles PATCH /api/notes/{id}: body edits, subject rename, and
// approval all ride on the same partial update.
func (s *Server) patchNote(w http.ResponseWriter, r *http.Request) {
	owner := s.owner(r)
	if owner == "" || s.store == nil {
		writeError(w, identity.ErrNoIdentity)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	var req patchNoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	upd := req.update()
	if upd.Empty() {
		writeJSON(w, http.StatusBadRequest, errorBody("no fields to update"))
		return
	}

	rec, err := s.store.Update(r.Context(), owner, id, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordNoteSaved(r.Context(), "update")
	}
	writeJSON(w, http.StatusOK, rec)
}

// deleteNote handles DELETE /api/notes/{id}.
func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	owner := s.owner(r)
	if owner == "" || s.store == nil {
		writeError(w, identity.ErrNoIdentity)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid record id"))
		return
	}
	if err := s.store.Delete(r.Context(), owner, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// events handles GET /api/events, the SSE change feed. Each client receives
// notes.changed and session.changed events for its own identity only.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	owner := s.owner(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broker.Subscribe(owner)
	defer s.broker.Unsubscribe(ch)

	logger := observe.Logger(r.Context())
	logger.Debug("sse client connected", "owner", owner)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
