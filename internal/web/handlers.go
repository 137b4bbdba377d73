package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"itincal/internal/itinerary"
	appLog "itincal/internal/log"
	"itincal/internal/model"
	"itincal/internal/planner"
)

func (s *Server) handleDayItems(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toItemDTOs(sess.Day(day)))
}

func (s *Server) handleDayGaps(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	gaps := s.deps.Planner.Gaps(sess.Day(day), day)
	out := make([]gapDTO, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, toGapDTO(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDaySuggestions(w http.ResponseWriter, r *http.Request) {
	day, err := s.parseDay(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}

	opts := s.deps.Planner.Options()
	if v := r.URL.Query().Get("policy"); v != "" {
		p, err := planner.ParsePolicy(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		opts.Policy = p
	}
	if n := parseIntDefault(r.URL.Query().Get("limit"), opts.MaxSuggestions); n > 0 {
		opts.MaxSuggestions = n
	}

	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pool, err := s.deps.Pool.Load(r.Context())
	if err != nil {
		appLog.Error("load candidate pool failed", err)
		writeError(w, http.StatusBadGateway, "candidate activities unavailable")
		return
	}

	out := s.deps.Planner.With(opts).Suggest(sess.Items(), day, pool)
	writeJSON(w, http.StatusOK, toGapSuggestionsDTOs(out))
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}

	item := model.TimelineItem{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location.model(),
		Start:       req.Start.In(s.deps.Location),
		End:         req.End.In(s.deps.Location),
		Provenance:  model.ProvenanceManual,
	}
	s.insert(w, r, item)
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ActivityID == "" || req.GapStart.IsZero() {
		writeError(w, http.StatusUnprocessableEntity, "activity_id and gap_start are required")
		return
	}

	pool, err := s.deps.Pool.Load(r.Context())
	if err != nil {
		appLog.Error("load candidate pool failed", err)
		writeError(w, http.StatusBadGateway, "candidate activities unavailable")
		return
	}
	var activity *model.CandidateActivity
	for i := range pool {
		if pool[i].ID == req.ActivityID {
			activity = &pool[i]
			break
		}
	}
	if activity == nil {
		writeError(w, http.StatusNotFound, "unknown activity "+req.ActivityID)
		return
	}

	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	gapStart := req.GapStart.In(s.deps.Location)
	var gap *model.TimeGap
	for _, g := range s.deps.Planner.Gaps(sess.Day(gapStart), gapStart) {
		if g.Start.Equal(gapStart) {
			gap = &g
			break
		}
	}
	if gap == nil {
		writeError(w, http.StatusConflict, "no open gap starts at "+gapStart.Format(time.RFC3339))
		return
	}

	fit, ok := s.deps.Planner.Fit(*gap, *activity)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "activity does not fit the gap")
		return
	}
	s.insert(w, r, s.deps.Planner.Accept(fit))
}

// insert adds item to the request's session and maps rejections to status
// codes: 422 for a bad interval, 409 for overlaps and duplicates.
func (s *Server) insert(w http.ResponseWriter, r *http.Request, item model.TimelineItem) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res, err := sess.Insert(r.Context(), item)
	if err != nil {
		appLog.Error("persist item failed", err, "session", sess.ID, "id", item.ID)
		writeError(w, http.StatusInternalServerError, "could not save item")
		return
	}
	if !res.OK() {
		status := http.StatusConflict
		if res.Reason == itinerary.ReasonInvalidInterval {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errResp{
			Error:     res.Err().Error(),
			Reason:    string(res.Reason),
			Conflicts: res.ConflictTitles(),
		})
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(res.Item))
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	res, err := sess.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		appLog.Error("persist removal failed", err, "session", sess.ID)
		writeError(w, http.StatusInternalServerError, "could not remove item")
		return
	}
	switch {
	case res.OK():
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(res.Err(), itinerary.ErrImmutable):
		writeJSON(w, http.StatusForbidden, errResp{Error: res.Err().Error(), Reason: string(res.Reason)})
	default:
		writeJSON(w, http.StatusNotFound, errResp{Error: res.Err().Error(), Reason: string(res.Reason)})
	}
}

func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := sess.Clear(r.Context()); err != nil {
		appLog.Error("clear session failed", err, "session", sess.ID)
		writeError(w, http.StatusInternalServerError, "could not clear items")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Importer == nil {
		writeError(w, http.StatusNotImplemented, "no calendar sources configured")
		return
	}
	day, err := s.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	items, err := s.deps.Importer.Import(r.Context(), day)
	if err != nil {
		appLog.Error("calendar import failed", err, "session", sess.ID)
		writeError(w, http.StatusBadGateway, "calendar import failed")
		return
	}
	res, err := sess.ImportBatch(r.Context(), items)
	if err != nil {
		appLog.Error("persist import failed", err, "session", sess.ID)
		writeError(w, http.StatusInternalServerError, "could not save imported items")
		return
	}

	resp := importResponse{
		Date:    day.Format(time.DateOnly),
		Added:   toItemDTOs(res.Added),
		Skipped: res.Skipped,
		Invalid: res.Invalid,
	}
	if resp.Skipped == nil {
		resp.Skipped = []string{}
	}
	if resp.Invalid == nil {
		resp.Invalid = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	pool, err := s.deps.Pool.Load(r.Context())
	if err != nil {
		appLog.Error("load candidate pool failed", err)
		writeError(w, http.StatusBadGateway, "candidate activities unavailable")
		return
	}
	writeJSON(w, http.StatusOK, pool)
}
