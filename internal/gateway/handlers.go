package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sentirlabs/sentir/internal/companion"
	"github.com/sentirlabs/sentir/internal/journal"
	"github.com/sentirlabs/sentir/pkg/audio"
	"github.com/sentirlabs/sentir/pkg/provider/chat"
	"github.com/sentirlabs/sentir/pkg/provider/media"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Entry    journal.Entry `json:"entry"`
	Audio    string        `json:"audio,omitempty"` // base64 s16le PCM
	Rate     int           `json:"sampleRate,omitempty"`
	Fallback bool          `json:"fallback,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	start := time.Now()
	turn, err := s.cfg.Companion.Respond(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrAuth) {
			s.metrics.RecordProviderError(r.Context(), "chat", "auth")
			writeError(w, http.StatusUnauthorized, "chat provider rejected the configured credential")
			return
		}
		s.log.Error("chat turn failed", "error", err)
		writeError(w, http.StatusBadGateway, "chat turn failed")
		return
	}
	s.metrics.ChatDuration.Record(r.Context(), time.Since(start).Seconds())

	resp := chatResponse{Entry: turn.Entry, Fallback: turn.Fallback}
	if turn.Audio.Samples() > 0 {
		resp.Audio = audio.EncodeBase64(turn.Audio.Data)
		resp.Rate = turn.Audio.SampleRate
	}
	writeJSON(w, http.StatusOK, resp)
}

type ttsRequest struct {
	EntryID string `json:"entryId"`
}

type ttsResponse struct {
	Audio string `json:"audio"` // base64 s16le PCM
	Rate  int    `json:"sampleRate"`
}

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.EntryID == "" {
		writeError(w, http.StatusBadRequest, "entryId must not be empty")
		return
	}

	start := time.Now()
	frame, err := s.cfg.Companion.Revoice(r.Context(), req.EntryID)
	switch {
	case errors.Is(err, companion.ErrEntryNotFound):
		writeError(w, http.StatusNotFound, "journal entry not found")
		return
	case errors.Is(err, chat.ErrAuth):
		s.metrics.RecordProviderError(r.Context(), "tts", "auth")
		writeError(w, http.StatusUnauthorized, "speech provider rejected the configured credential")
		return
	case err != nil:
		s.metrics.RecordProviderError(r.Context(), "tts", "synthesis")
		s.log.Error("speech synthesis failed", "entry_id", req.EntryID, "error", err)
		writeError(w, http.StatusBadGateway, "speech synthesis failed")
		return
	}
	s.metrics.TTSDuration.Record(r.Context(), time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, ttsResponse{
		Audio: audio.EncodeBase64(frame.Data),
		Rate:  frame.SampleRate,
	})
}

type imageRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	Size        string `json:"size,omitempty"`
}

type videoRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Media == nil {
		writeError(w, http.StatusNotImplemented, "media generation is not configured")
		return
	}
	var req imageRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	start := time.Now()
	uri, err := s.cfg.Media.GenerateImage(r.Context(), media.ImageRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		Size:        req.Size,
	})
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "media", "image")
		s.log.Error("image generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "image generation failed")
		return
	}
	s.metrics.RecordMediaDuration(r.Context(), "image", time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]string{"dataUri": uri})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Media == nil {
		writeError(w, http.StatusNotImplemented, "media generation is not configured")
		return
	}
	var req videoRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt must not be empty")
		return
	}

	start := time.Now()
	url, err := s.cfg.Media.GenerateVideo(r.Context(), media.VideoRequest{
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "media", "video")
		s.log.Error("video generation failed", "error", err)
		writeError(w, http.StatusBadGateway, "video generation failed")
		return
	}
	s.metrics.RecordMediaDuration(r.Context(), "video", time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.cfg.Store.LoadSettings(r.Context())
	if err != nil {
		s.log.Error("load settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings journal.Settings
	if !readJSON(w, r, &settings) {
		return
	}
	if !settings.Voice.Valid() {
		writeError(w, http.StatusBadRequest, "voice must be \"female\" or \"male\"")
		return
	}
	if err := s.cfg.Store.SaveSettings(r.Context(), settings); err != nil {
		s.log.Error("save settings failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type journalResponse struct {
	Days []journal.DayGroup `json:"days"`
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0 // all
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.cfg.Store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("load journal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load journal")
		return
	}
	writeJSON(w, http.StatusOK, journalResponse{Days: journal.ByDay(entries)})
}

func (s *Server) handleClearJournal(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Store.Clear(r.Context()); err != nil {
		s.log.Error("clear journal failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not clear journal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q must not be empty")
		return
	}
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	entries, err := s.cfg.Store.Related(r.Context(), query, limit)
	if err != nil {
		s.log.Error("related lookup failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "could not search journal")
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string][]journal.Entry{"entries": entries})
}
