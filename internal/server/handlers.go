package server

import (
	"net/http"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jesse-c/kopya-sub000/internal/domain"
	"github.com/jesse-c/kopya-sub000/internal/timeutil"
)

const offsetRequiresLimit = "The 'offset' parameter requires 'limit' parameter for proper pagination"

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type historyResponse struct {
	Entries []domain.Entry `json:"entries"`
	Total   int            `json:"total"`
}

type deleteEntryResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Message string `json:"message"`
}

type privateStatusResponse struct {
	IsMonitoring         bool   `json:"isMonitoring"`
	TimerActive          bool   `json:"timerActive"`
	ScheduledDisableTime string `json:"scheduledDisableTime,omitempty"`
	RemainingDuration    string `json:"remainingDuration,omitempty"`
}

// handleGetHistory serves GET /history?limit=&offset=&range=.
// The range is interpreted forward from now, matching the historical
// behavior of this endpoint (DELETE /history interprets it backward).
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseIntParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}
	offset, ok := parseIntParam(w, q.Get("offset"), "offset")
	if !ok {
		return
	}
	if offset > 0 && limit <= 0 {
		writeError(w, http.StatusBadRequest, offsetRequiresLimit)
		return
	}

	filter := domain.SearchFilter{Limit: limit, Offset: offset}
	if rng, ok := timeutil.ParseRelative(q.Get("range"), time.Now()); ok {
		filter.Start = rng.Start
		filter.End = rng.End
	}

	entries, err := s.store.Search(r.Context(), filter)
	if err != nil {
		s.serverError(w, "history query failed", err)
		return
	}

	// Total ignores pagination but honors the range constraint.
	unpaged := filter
	unpaged.Limit = 0
	unpaged.Offset = 0
	all, err := s.store.Search(r.Context(), unpaged)
	if err != nil {
		s.serverError(w, "history count failed", err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, Total: len(all)})
}

// handleSearch serves GET /search?type=&query=&range=&limit=&startDate=&endDate=.
// Explicit ISO-8601 dates override the relative range.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseIntParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	filter := domain.SearchFilter{
		Type:  q.Get("type"),
		Query: q.Get("query"),
		Limit: limit,
	}

	if rng, ok := timeutil.ParseRelative(q.Get("range"), time.Now()); ok {
		filter.Start = rng.Start
		filter.End = rng.End
	}

	if v := q.Get("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid startDate, expected ISO-8601")
			return
		}
		filter.Start = t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid endDate, expected ISO-8601")
			return
		}
		filter.End = t
	}

	entries, err := s.store.Search(r.Context(), filter)
	if err != nil {
		s.serverError(w, "search query failed", err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{Entries: entries, Total: len(entries)})
}

// handleDeleteHistory serves DELETE /history?limit=&start=&end=&range=.
// Unlike GET /history, the range here means "the last N minutes/hours":
// it is inverted to end at now.
func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := parseIntParam(w, q.Get("limit"), "limit")
	if !ok {
		return
	}

	filter := domain.SearchFilter{Limit: limit}

	if rng, ok := timeutil.ParseRelative(q.Get("range"), time.Now()); ok {
		back := rng.Backward(time.Now())
		filter.Start = back.Start
		filter.End = back.End
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start, expected ISO-8601")
			return
		}
		filter.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end, expected ISO-8601")
			return
		}
		filter.End = t
	}

	result, err := s.store.DeleteMatching(r.Context(), filter)
	if err != nil {
		s.serverError(w, "history deletion failed", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeleteEntry serves DELETE /history/{id}.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !uuidPattern.MatchString(id) {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}

	deleted, err := s.store.DeleteByID(r.Context(), id)
	if err != nil {
		s.serverError(w, "entry deletion failed", err)
		return
	}

	if !deleted {
		writeJSON(w, http.StatusNotFound, deleteEntryResponse{
			Success: false,
			ID:      id,
			Message: "Entry not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, deleteEntryResponse{
		Success: true,
		ID:      id,
		Message: "Entry deleted successfully",
	})
}

// handlePrivateEnable serves POST /private/enable?range=.
func (s *Server) handlePrivateEnable(w http.ResponseWriter, r *http.Request) {
	s.privateMode.Enable(r.URL.Query().Get("range"))
	writeJSON(w, http.StatusOK, s.privateStatus())
}

// handlePrivateDisable serves POST /private/disable.
func (s *Server) handlePrivateDisable(w http.ResponseWriter, r *http.Request) {
	s.privateMode.Disable()
	writeJSON(w, http.StatusOK, s.privateStatus())
}

// handlePrivateStatus serves GET /private/status.
func (s *Server) handlePrivateStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.privateStatus())
}

func (s *Server) privateStatus() privateStatusResponse {
	st := s.privateMode.Status()

	resp := privateStatusResponse{
		IsMonitoring: st.Monitoring,
		TimerActive:  st.TimerActive,
	}
	if st.TimerActive {
		resp.ScheduledDisableTime = st.ResumeAt.UTC().Format(time.RFC3339)
		if st.Remaining > 0 {
			resp.RemainingDuration = st.Remaining.Round(time.Second).String()
		} else {
			resp.RemainingDuration = "less than a second"
		}
	}
	return resp
}

// parseIntParam parses a non-negative integer query parameter. Empty input
// yields zero. Writes a 400 and returns ok=false on malformed input.
func parseIntParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid '"+name+"' parameter")
		return 0, false
	}
	return n, true
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}
