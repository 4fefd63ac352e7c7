// Package logger provides audit logging.
package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// AuditLogger provides dedicated audit trail logging for money-moving operations.
type AuditLogger struct {
	*logrus.Entry
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(baseLogger *logrus.Logger) *AuditLogger {
	return &AuditLogger{
		Entry: baseLogger.WithField("component", "audit"),
	}
}

// LogBetPlacement logs a recorded bet placement.
func (al *AuditLogger) LogBetPlacement(userID, courseCode string, betID int64, threshold float64, stake, native string, contract, txHash string, placedAt time.Time) {
	al.WithFields(logrus.Fields{
		"user_id":          userID,
		"course_code":      courseCode,
		"bet_id":           betID,
		"grade_threshold":  threshold,
		"stake":            stake,
		"stake_native":     native,
		"contract_address": contract,
		"transaction_hash": txHash,
		"timestamp":        placedAt.Unix(),
	}).Info("Bet placement recorded")
}

// LogContractDeployment logs the first escrow deployment for a course.
func (al *AuditLogger) LogContractDeployment(userID, courseCode, contract, funded string) {
	al.WithFields(logrus.Fields{
		"user_id":          userID,
		"course_code":      courseCode,
		"contract_address": contract,
		"funded_amount":    funded,
	}).Info("Escrow contract deployed")
}

// LogCourseResolution logs the outcome of a resolution saga.
func (al *AuditLogger) LogCourseResolution(userID, courseCode string, grade float64, resolved, failed []int64) {
	entry := al.WithFields(logrus.Fields{
		"user_id":       userID,
		"course_code":   courseCode,
		"actual_grade":  grade,
		"resolved_bets": resolved,
		"failed_bets":   failed,
	})
	if len(failed) > 0 {
		entry.Warn("Course resolution partially applied")
		return
	}
	entry.Info("Course resolution applied")
}

// LogOddsWrite logs a batch of probability writes for a course.
func (al *AuditLogger) LogOddsWrite(courseCode, mode string, thresholds []float64) {
	al.WithFields(logrus.Fields{
		"course_code": courseCode,
		"mode":        mode,
		"thresholds":  thresholds,
	}).Info("Odds written")
}

// Inconsistency describes a state where the escrow and the ledger disagree
type Inconsistency struct {
	Reason     string
	UserID     string
	CourseCode string
	Contract   string
	BetID      int64
	TxHash     string
	Stake      string
}

// LogInconsistency logs an escrow/ledger mismatch. These entries require manual reconciliation.
func (al *AuditLogger) LogInconsistency(inc Inconsistency, err error) {
	fields := logrus.Fields{
		"reason":           inc.Reason,
		"user_id":          inc.UserID,
		"course_code":      inc.CourseCode,
		"contract_address": inc.Contract,
		"transaction_hash": inc.TxHash,
		"stake":            inc.Stake,
	}
	if inc.BetID != 0 {
		fields["bet_id"] = inc.BetID
	}
	al.WithFields(fields).WithError(err).Error("Escrow and ledger out of sync")
}
