// Package api exposes the market lifecycle over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/forecast"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/service"
)

const (
	// UserHeader carries the authenticated identity key set by the upstream auth proxy
	UserHeader = "X-User-Sub"
	// AdminKeyHeader carries the shared secret for admin routes
	AdminKeyHeader = "X-Admin-Key"

	maxBodyBytes = 1 << 20
)

// OddsAPI is the odds side of the service layer
type OddsAPI interface {
	Predict(ctx context.Context, sub string, req service.PredictRequest) (*forecast.Prediction, error)
	RefreshOdds(ctx context.Context, sub, courseCode string, difficulty *float64) (*service.RefreshResult, error)
	SyncOdds(ctx context.Context, sub string, req service.SyncRequest) (*models.OddsSyncResult, error)
	GetOdds(ctx context.Context, sub, courseCode string) ([]models.OddsEntry, error)
}

// BetsAPI is the placement and resolution side of the service layer
type BetsAPI interface {
	PlaceBet(ctx context.Context, sub string, req service.PlaceBetRequest) (*service.PlaceBetResult, error)
	ResolveCourse(ctx context.Context, sub, courseCode string, grade float64) (*service.ResolutionReport, error)
}

// BetReader lists a user's bets
type BetReader interface {
	ListBets(ctx context.Context, sub string) (*service.BetSummary, error)
}

// Server serves the public and admin API
type Server struct {
	odds     OddsAPI
	bets     BetsAPI
	reader   BetReader
	adminKey string
	logger   *logrus.Logger
}

// NewServer creates a new API server
func NewServer(odds OddsAPI, bets BetsAPI, reader BetReader, adminKey string, log *logrus.Logger) *Server {
	return &Server{
		odds:     odds,
		bets:     bets,
		reader:   reader,
		adminKey: adminKey,
		logger:   log,
	}
}

// Router returns the API handler
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/predict", s.handlePredict)
	mux.HandleFunc("POST /api/courses/{code}/odds/refresh", s.handleRefreshOdds)
	mux.HandleFunc("GET /api/courses/{code}/odds", s.handleGetOdds)
	mux.HandleFunc("POST /api/odds/update", s.handleSyncOdds)
	mux.HandleFunc("POST /api/bets", s.handlePlaceBet)
	mux.HandleFunc("GET /api/bets", s.handleListBets)
	mux.HandleFunc("POST /api/admin/resolve-course", s.requireAdmin(s.handleResolveCourse))

	return s.recoverer(s.requestLogger(mux))
}

// HTTPServer wraps the router with the configured timeouts
func (s *Server) HTTPServer(port int, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if s.adminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminKey)) != 1 {
			writeFailure(w, http.StatusUnauthorized, "unauthorized", "admin credential required")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Handled request")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.WithField("panic", p).WithField("path", r.URL.Path).Error("Handler panicked")
				writeFailure(w, http.StatusInternalServerError, reasonInternal, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// entry returns a request-scoped log entry
func (s *Server) entry(r *http.Request) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"path":       r.URL.Path,
		"user_sub":   r.Header.Get(UserHeader),
	})
}
