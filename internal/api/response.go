package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/service"
)

// Envelope is the body of every API response
type Envelope struct {
	Success bool        `json:"success"`
	Reason  string      `json:"reason,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

const reasonInternal = "internal_error"

func writeJSON(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, reason, msg string) {
	writeJSON(w, status, Envelope{Success: false, Reason: reason, Error: msg})
}

// writeError maps a classified operation failure onto a status code and reason
func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	var opErr *service.OperationError
	if !errors.As(err, &opErr) {
		log.WithError(err).Error("Request failed")
		writeFailure(w, http.StatusInternalServerError, reasonInternal, "internal error")
		return
	}

	writeFailure(w, statusFor(opErr), opErr.Reason, opErr.Error())
}

func statusFor(opErr *service.OperationError) int {
	switch opErr.Reason {
	case service.ReasonGradeAlreadySet, service.ReasonMarketClosed:
		return http.StatusConflict
	case service.ReasonUpstreamTimeout:
		return http.StatusGatewayTimeout
	}

	switch opErr.Kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
