package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/FocuswithJustin/versereader/core/errors"
	"github.com/FocuswithJustin/versereader/internal/reader"
	"github.com/FocuswithJustin/versereader/internal/server"
	"github.com/FocuswithJustin/versereader/internal/store"
)

// UserHeader carries the caller's identity. Authentication happens in
// front of this service.
const UserHeader = "X-User-ID"

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

var errNoUser = stderrors.New("missing " + UserHeader + " header")

// BookmarkRequest is the body of POST /api/bookmarks.
type BookmarkRequest struct {
	Version string `json:"version"`
	Book    string `json:"book"`
	Chapter int    `json:"chapter"`
	Verse   int    `json:"verse"`
	Note    string `json:"note"`
}

func userID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(UserHeader))
	if id == "" {
		return "", errNoUser
	}
	if !server.ValidateIdentifier(id) {
		return "", errors.NewValidation("user_id", "contains invalid characters")
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.NewValidation("body", "malformed JSON: "+err.Error())
	}
	return nil
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	pos, err := s.store.LoadPosition(r.Context(), user)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			s.respondErr(w, r, err)
			return
		}
		pos = reader.DefaultSettings(s.cfg.defaultVersion())
	}
	respond(w, http.StatusOK, pos)
}

func (s *Server) handlePutPosition(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var pos reader.Settings
	if err := decodeBody(w, r, &pos); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if _, err := s.versionValue(pos.Version); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if pos.FontSize == 0 {
		pos.FontSize = reader.DefaultFontSize
	}
	if pos.FontSize < reader.MinFontSize || pos.FontSize > reader.MaxFontSize {
		s.respondErr(w, r, errors.NewValidation("font_size", "out of range"))
		return
	}

	if err := s.store.SavePosition(r.Context(), user, pos); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respond(w, http.StatusOK, pos)
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	marks, err := s.store.ListBookmarks(r.Context(), user)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondList(w, http.StatusOK, marks, len(marks))
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	var req BookmarkRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.respondErr(w, r, err)
		return
	}
	if _, err := s.versionValue(req.Version); err != nil {
		s.respondErr(w, r, err)
		return
	}
	note := server.LimitStringLength(server.SanitizeUserInput(req.Note), store.MaxNoteRunes)

	mark, err := s.store.AddBookmark(r.Context(), user, req.Version, strings.ToLower(req.Book), req.Chapter, req.Verse, note)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	respond(w, http.StatusCreated, mark)
}

func (s *Server) handleDeleteBookmark(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if err := s.store.DeleteBookmark(r.Context(), user, r.PathValue("id")); err != nil {
		s.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
