package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/yourusername/grade-market/internal/service"
)

type refreshOddsRequest struct {
	Difficulty *float64 `json:"difficulty"`
}

type resolveCourseRequest struct {
	UserSub     string   `json:"userSub"`
	CourseCode  string   `json:"courseCode"`
	ActualGrade *float64 `json:"actualGrade"`
}

// decode reads a JSON body into v. An empty body is accepted when optional is set.
func decode(r *http.Request, v interface{}, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func userSub(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// requireUser writes a 401 and returns false when the request carries no identity
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	sub := userSub(r)
	if sub == "" {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "missing "+UserHeader+" header")
		return "", false
	}
	return sub, true
}

func badBody(w http.ResponseWriter, err error) {
	writeFailure(w, http.StatusBadRequest, service.ReasonValidation, "invalid request body: "+err.Error())
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req service.PredictRequest
	if err := decode(r, &req, true); err != nil {
		badBody(w, err)
		return
	}

	// Supplied grades need no identity; stored history does.
	sub := userSub(r)
	if len(req.Grades) == 0 && sub == "" {
		writeFailure(w, http.StatusUnauthorized, "unauthorized", "missing "+UserHeader+" header")
		return
	}

	prediction, err := s.odds.Predict(r.Context(), sub, req)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, prediction)
}

func (s *Server) handleRefreshOdds(w http.ResponseWriter, r *http.Request) {
	sub, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req refreshOddsRequest
	if err := decode(r, &req, true); err != nil {
		badBody(w, err)
		return
	}

	result, err := s.odds.RefreshOdds(r.Context(), sub, r.PathValue("code"), req.Difficulty)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleGetOdds(w http.ResponseWriter, r *http.Request) {
	sub, ok := requireUser(w, r)
	if !ok {
		return
	}

	odds, err := s.odds.GetOdds(r.Context(), sub, r.PathValue("code"))
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, odds)
}

func (s *Server) handleSyncOdds(w http.ResponseWriter, r *http.Request) {
	sub, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.SyncRequest
	if err := decode(r, &req, false); err != nil {
		badBody(w, err)
		return
	}

	result, err := s.odds.SyncOdds(r.Context(), sub, req)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handlePlaceBet(w http.ResponseWriter, r *http.Request) {
	sub, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.PlaceBetRequest
	if err := decode(r, &req, false); err != nil {
		badBody(w, err)
		return
	}

	result, err := s.bets.PlaceBet(r.Context(), sub, req)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleListBets(w http.ResponseWriter, r *http.Request) {
	sub, ok := requireUser(w, r)
	if !ok {
		return
	}

	summary, err := s.reader.ListBets(r.Context(), sub)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}
	writeOK(w, summary)
}

func (s *Server) handleResolveCourse(w http.ResponseWriter, r *http.Request) {
	var req resolveCourseRequest
	if err := decode(r, &req, false); err != nil {
		badBody(w, err)
		return
	}
	if req.UserSub == "" || req.CourseCode == "" || req.ActualGrade == nil {
		writeFailure(w, http.StatusBadRequest, service.ReasonValidation, "userSub, courseCode and actualGrade are required")
		return
	}

	report, err := s.bets.ResolveCourse(r.Context(), req.UserSub, req.CourseCode, *req.ActualGrade)
	if err != nil {
		writeError(w, s.entry(r), err)
		return
	}

	env := Envelope{Success: true, Data: report}
	if report.Partial() {
		env.Reason = service.ReasonPartialFailure
		env.Error = report.UpstreamError
	}
	writeJSON(w, http.StatusOK, env)
}
