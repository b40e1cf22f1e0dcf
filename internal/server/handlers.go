package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxRequestBytes = 64 << 10

type handlers struct {
	ex Extractor
}

type extractRequest struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

func (h *handlers) sites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, h.ex.Sites())
}

// extract always answers 200 once the body is valid; a failed extraction
// yields the empty record.
func (h *handlers) extract(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, h.ex.ExtractFanficData(r.Context(), req.URL))
}

func (h *handlers) chapters(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, r, http.StatusOK, h.ex.ExtractFanficChapters(r.Context(), req.URL))
}

func decodeRequest(r *http.Request) (extractRequest, error) {
	var req extractRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, errors.New("body must be a JSON object with a url field")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, errors.New("url is required")
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Ctx(r.Context()).Warn().Err(err).Msg("write response")
	}
}
