// Package logger provides forecast-specific logging.
package logger

import (
	"github.com/sirupsen/logrus"
)

// ForecastLogger provides dedicated logging for grade forecast calls.
type ForecastLogger struct {
	*logrus.Entry
}

// NewForecastLogger creates a new forecast logger.
func NewForecastLogger(baseLogger *logrus.Logger) *ForecastLogger {
	return &ForecastLogger{
		Entry: baseLogger.WithField("component", "forecast"),
	}
}

// LogPredictionRequest logs a completed forecast request.
func (fl *ForecastLogger) LogPredictionRequest(gradesCount int, difficulty int, cacheHit bool, latencyMs float64) {
	fl.WithFields(logrus.Fields{
		"grades_count": gradesCount,
		"difficulty":   difficulty,
		"cache_hit":    cacheHit,
		"latency_ms":   latencyMs,
	}).Info("Forecast request completed")
}

// LogPredictionError logs a failed forecast request.
func (fl *ForecastLogger) LogPredictionError(errorReason string, err error) {
	fl.WithFields(logrus.Fields{
		"error_reason": errorReason,
	}).WithError(err).Error("Forecast request failed")
}
