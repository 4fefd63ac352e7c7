package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/events"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/market"
	"github.com/yourusername/grade-market/internal/metrics"
	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
	"github.com/yourusername/grade-market/internal/settlement"
)

// sagaTimeout bounds a placement or resolution once it has detached from the caller
const sagaTimeout = 2 * time.Minute

// maxFallbackIDAttempts bounds retries when a clock-derived bet id collides
const maxFallbackIDAttempts = 3

// Resolution statuses
const (
	ResolutionDone           = "done"
	ResolutionPartialFailure = "partial_failure"
)

// Coordinator runs the placement and resolution sagas across the ledger and the escrow
type Coordinator struct {
	repos     *repository.Repositories
	gateway   settlement.Gateway
	publisher events.Publisher
	ids       *IDGenerator
	rate      decimal.Decimal
	maxStake  decimal.Decimal
	audit     *logger.AuditLogger
	logger    *logrus.Logger
	now       func() time.Time
}

// NewCoordinator creates a new reconciliation coordinator
func NewCoordinator(
	repos *repository.Repositories,
	gateway settlement.Gateway,
	publisher events.Publisher,
	marketCfg config.MarketConfig,
	log *logrus.Logger,
) *Coordinator {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Coordinator{
		repos:     repos,
		gateway:   gateway,
		publisher: publisher,
		ids:       NewIDGenerator(),
		rate:      marketCfg.NativeRate(),
		maxStake:  marketCfg.MaxStakeAmount(),
		audit:     logger.NewAuditLogger(log),
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PlaceBetRequest is a stake against one course threshold
type PlaceBetRequest struct {
	CourseCode string          `json:"courseCode"`
	Threshold  float64         `json:"threshold"`
	Amount     decimal.Decimal `json:"amount"`
}

// PlaceBetResult is the identity of a recorded bet
type PlaceBetResult struct {
	BetID            int64       `json:"betId"`
	ContractAddress  string      `json:"contractAddress"`
	TransactionHash  string      `json:"transactionHash"`
	ContractDeployed bool        `json:"contractDeployed"`
	Bet              *models.Bet `json:"bet"`
}

// SettledBet is a bet backfilled during resolution
type SettledBet struct {
	BetID  int64           `json:"betId"`
	Won    bool            `json:"won"`
	Profit decimal.Decimal `json:"profit"`
}

// FailedBet is a bet the escrow settled but the ledger could not record
type FailedBet struct {
	BetID  int64  `json:"betId"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// ResolutionReport describes the terminal state of a course resolution
type ResolutionReport struct {
	CourseCode      string       `json:"courseCode"`
	UserID          string       `json:"userId"`
	Grade           float64      `json:"grade"`
	ContractAddress string       `json:"contractAddress,omitempty"`
	GradeRecorded   bool         `json:"gradeRecorded"`
	Status          string       `json:"status"`
	Settled         []SettledBet `json:"settled"`
	Failed          []FailedBet  `json:"failed"`
	Pending         []int64      `json:"pending"`
	UpstreamError   string       `json:"upstreamError,omitempty"`
}

// Partial reports whether some bets remain unsettled
func (r *ResolutionReport) Partial() bool {
	return r.Status == ResolutionPartialFailure
}

// PlaceBet validates a stake, ensures the course has an escrow, transfers the stake and
// records the bet. No ledger entry is created unless the escrow accepted the stake.
func (c *Coordinator) PlaceBet(ctx context.Context, sub string, req PlaceBetRequest) (*PlaceBetResult, error) {
	const op = "place_bet"
	start := time.Now()

	// Validating
	if math.IsNaN(req.Threshold) || math.IsInf(req.Threshold, 0) {
		return nil, c.placementFailed(validationError(op, "threshold must be finite"))
	}
	if !req.Amount.IsPositive() {
		return nil, c.placementFailed(validationError(op, "stake amount must be positive"))
	}
	if !models.StakeRepresentable(req.Amount) {
		return nil, c.placementFailed(validationError(op,
			"stake amount %s must have at most %d decimal places and be below %s", req.Amount, models.StakeScale, models.MaxStakeAmount))
	}
	if c.maxStake.IsPositive() && req.Amount.GreaterThan(c.maxStake) {
		return nil, c.placementFailed(validationError(op, "stake amount %s exceeds maximum %s", req.Amount, c.maxStake))
	}
	native := market.ToNative(req.Amount, c.rate)
	if settlement.ToWei(native).Sign() <= 0 {
		return nil, c.placementFailed(validationError(op, "stake amount %s is below the smallest native unit", req.Amount))
	}

	user, course, err := loadCourse(ctx, c.repos, op, sub, req.CourseCode)
	if err != nil {
		return nil, c.placementFailed(err)
	}
	if course.Past {
		return nil, c.placementFailed(opError(KindValidation, ReasonMarketClosed, op, fmt.Errorf("course %s is resolved", course.Code)))
	}
	if _, ok := course.OddsFor(req.Threshold); !ok {
		return nil, c.placementFailed(opError(KindNotFound, ReasonThresholdNotFound, op,
			fmt.Errorf("threshold %v on course %s", req.Threshold, course.Code)))
	}

	// From here on the saga runs to a terminal state regardless of the caller
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sagaTimeout)
	defer cancel()

	log := c.logger.WithFields(logrus.Fields{
		"user_id":         user.ID,
		"course_code":     course.Code,
		"grade_threshold": req.Threshold,
		"stake":           req.Amount.String(),
	})

	// EnsuringContract
	contract, deployed, err := c.ensureContract(ctx, op, user, course)
	if err != nil {
		return nil, c.placementFailed(err)
	}
	log = log.WithField("contract_address", contract)

	// PlacingStake
	receipt, err := c.gateway.PlaceStake(ctx, contract, req.Threshold, native)
	if err != nil {
		// a timeout or an unreadable acknowledgement leaves the transfer unknown
		reason := ""
		switch {
		case errors.Is(err, settlement.ErrTimeout):
			reason = ReasonUpstreamTimeout
		case errors.Is(err, settlement.ErrInvalidResponse):
			reason = ReasonStakeOutcomeUnknown
		}
		if reason != "" {
			c.audit.LogInconsistency(logger.Inconsistency{
				Reason:     reason,
				UserID:     user.ID.String(),
				CourseCode: course.Code,
				Contract:   contract,
				Stake:      req.Amount.String(),
			}, err)
			metrics.RecordInconsistency(reason)
			if reason == ReasonUpstreamTimeout {
				return nil, c.placementFailed(opError(KindUpstreamUnavailable, reason, op, err))
			}
			return nil, c.placementFailed(opError(KindInconsistentState, reason, op, err))
		}
		log.WithError(err).Warn("Stake placement failed")
		return nil, c.placementFailed(opError(KindUpstreamUnavailable, ReasonStakePlacementFailed, op, err))
	}

	// Persisting
	txHash := receipt.TransactionHash
	if txHash == "" {
		log.Warn("Escrow acknowledged stake without a transaction hash")
	}
	bet := &models.Bet{
		UserID:          user.ID,
		CourseID:        course.ID,
		CourseCode:      course.Code,
		GradeThreshold:  req.Threshold,
		BetAmount:       req.Amount,
		BetAmountNative: native,
		ContractAddress: contract,
		PlacedAt:        c.now(),
	}
	if txHash != "" {
		bet.TransactionHash = &txHash
	}
	if err := c.record(ctx, bet, receipt.BetID); err != nil {
		c.audit.LogInconsistency(logger.Inconsistency{
			Reason:     ReasonStakePlacedButUnrecorded,
			UserID:     user.ID.String(),
			CourseCode: course.Code,
			Contract:   contract,
			BetID:      bet.BetID,
			TxHash:     txHash,
			Stake:      req.Amount.String(),
		}, err)
		metrics.RecordInconsistency(ReasonStakePlacedButUnrecorded)
		return nil, c.placementFailed(opError(KindInconsistentState, ReasonStakePlacedButUnrecorded, op, err))
	}

	// Done
	c.audit.LogBetPlacement(user.ID.String(), course.Code, bet.BetID, bet.GradeThreshold,
		bet.BetAmount.String(), bet.BetAmountNative.String(), contract, txHash, bet.PlacedAt)
	metrics.RecordBetPlaced(time.Since(start).Seconds())

	if err := c.publisher.PublishBetPlaced(ctx, bet); err != nil {
		log.WithError(err).Warn("Failed to publish bet placement")
	}

	return &PlaceBetResult{
		BetID:            bet.BetID,
		ContractAddress:  contract,
		TransactionHash:  txHash,
		ContractDeployed: deployed,
		Bet:              bet,
	}, nil
}

// ensureContract returns the course's escrow address, deploying and persisting one if unset
func (c *Coordinator) ensureContract(ctx context.Context, op string, user *models.User, course *models.Course) (string, bool, error) {
	if course.HasContract() {
		return course.ContractAddress(), false, nil
	}

	dep, err := c.gateway.DeployAndFund(ctx, course.Code, user.ID.String())
	if err != nil {
		c.logger.WithError(err).WithField("course_code", course.Code).Warn("Escrow deployment failed")
		return "", false, opError(KindUpstreamUnavailable, ReasonContractDeployFailed, op, err)
	}

	addr, err := c.repos.Courses.SetContractIfUnset(ctx, course.ID, dep.Address)
	if err != nil {
		c.audit.LogInconsistency(logger.Inconsistency{
			Reason:     ReasonContractUnrecorded,
			UserID:     user.ID.String(),
			CourseCode: course.Code,
			Contract:   dep.Address,
			TxHash:     dep.TransactionHash,
			Stake:      dep.FundedAmount.String(),
		}, err)
		metrics.RecordInconsistency(ReasonContractUnrecorded)
		return "", false, opError(KindInconsistentState, ReasonContractUnrecorded, op, err)
	}

	metrics.RecordContractDeployed()
	if addr != dep.Address {
		// a concurrent placement attached its escrow first; ours stays funded but unused
		c.audit.LogInconsistency(logger.Inconsistency{
			Reason:     "orphaned_contract",
			UserID:     user.ID.String(),
			CourseCode: course.Code,
			Contract:   dep.Address,
			TxHash:     dep.TransactionHash,
			Stake:      dep.FundedAmount.String(),
		}, fmt.Errorf("course already bound to %s", addr))
		metrics.RecordInconsistency("orphaned_contract")
		return addr, false, nil
	}

	c.audit.LogContractDeployment(user.ID.String(), course.Code, addr, dep.FundedAmount.String())
	return addr, true, nil
}

// record appends the bet and its shares increment, allocating a fallback id when the
// escrow did not report one
func (c *Coordinator) record(ctx context.Context, bet *models.Bet, escrowID *int64) error {
	if escrowID != nil {
		bet.BetID = *escrowID
		return c.repos.Ledger.RecordPlacement(ctx, bet)
	}

	var err error
	for attempt := 0; attempt < maxFallbackIDAttempts; attempt++ {
		bet.BetID = c.ids.Next()
		if err = c.repos.Ledger.RecordPlacement(ctx, bet); !errors.Is(err, models.ErrDuplicateKey) {
			return err
		}
	}
	return err
}

func (c *Coordinator) placementFailed(err error) error {
	if reason := ReasonOf(err); reason != "" {
		metrics.RecordPlacementFailure(reason)
	}
	return err
}

// ResolveCourse records a course's final grade, closes its market and settles its bets.
// A partially settled course is reported through the returned report, not an error.
func (c *Coordinator) ResolveCourse(ctx context.Context, sub, courseCode string, grade float64) (*ResolutionReport, error) {
	const op = "resolve_course"
	start := time.Now()

	if !models.ValidGrade(grade) {
		return nil, validationError(op, "grade %v out of range [0,100]", grade)
	}

	user, course, err := loadCourse(ctx, c.repos, op, sub, courseCode)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sagaTimeout)
	defer cancel()

	// SettingGrade
	changed, err := c.repos.Courses.Resolve(ctx, course.ID, grade, c.now())
	if err != nil {
		if errors.Is(err, models.ErrGradeConflict) {
			return nil, opError(KindValidation, ReasonGradeAlreadySet, op, err)
		}
		return nil, fmt.Errorf("%s: failed to record grade: %w", op, err)
	}

	report := c.settle(ctx, user.ID.String(), course, grade)
	report.GradeRecorded = changed

	c.finishResolution(ctx, report, start)
	return report, nil
}

// SettlePending re-runs settlement for resolved courses that still hold unresolved bets
func (c *Coordinator) SettlePending(ctx context.Context) ([]*ResolutionReport, error) {
	courses, err := c.repos.Courses.ListPastWithPendingBets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses with pending bets: %w", err)
	}

	reports := make([]*ResolutionReport, 0, len(courses))
	for _, course := range courses {
		if course.Grade == nil || !course.HasContract() {
			continue
		}
		start := time.Now()
		report := c.settle(ctx, course.UserID.String(), course, *course.Grade)
		c.finishResolution(ctx, report, start)
		reports = append(reports, report)
	}

	return reports, nil
}

// settle runs BatchResolving and Backfilling for a course whose grade is recorded
func (c *Coordinator) settle(ctx context.Context, userID string, course *models.Course, grade float64) *ResolutionReport {
	report := &ResolutionReport{
		CourseCode:      course.Code,
		UserID:          userID,
		Grade:           grade,
		ContractAddress: course.ContractAddress(),
		Status:          ResolutionDone,
		Settled:         []SettledBet{},
		Failed:          []FailedBet{},
		Pending:         []int64{},
	}
	if !course.HasContract() {
		return report
	}
	contract := course.ContractAddress()

	log := c.logger.WithFields(logrus.Fields{
		"course_code":      course.Code,
		"contract_address": contract,
		"actual_grade":     grade,
	})

	open, lerr := c.repos.Bets.ListUnresolvedByContract(ctx, contract)
	if lerr == nil && len(open) == 0 {
		log.Debug("No open bets on contract, skipping escrow resolution")
		return report
	}

	// BatchResolving
	results, err := c.gateway.ResolveAll(ctx, contract, grade)
	if errors.Is(err, settlement.ErrUnsupported) {
		log.Info("Escrow lacks batch resolution, settling bets individually")
		results, err = c.resolveIndividually(ctx, contract, grade, report)
	}
	if err != nil {
		log.WithError(err).Warn("Batch resolution failed, bets remain pending")
		report.UpstreamError = err.Error()
	}

	// Backfilling
	for _, res := range results {
		c.backfill(ctx, course, contract, grade, res, report)
	}

	pending, perr := c.repos.Bets.ListUnresolvedByContract(ctx, contract)
	if perr != nil {
		log.WithError(perr).Error("Failed to list pending bets")
		if report.UpstreamError == "" {
			report.UpstreamError = perr.Error()
		}
	}
	failed := make(map[int64]struct{}, len(report.Failed))
	for _, f := range report.Failed {
		failed[f.BetID] = struct{}{}
	}
	for _, b := range pending {
		if _, ok := failed[b.BetID]; !ok {
			report.Pending = append(report.Pending, b.BetID)
		}
	}

	if report.UpstreamError != "" || len(report.Failed) > 0 || len(report.Pending) > 0 {
		report.Status = ResolutionPartialFailure
	}
	return report
}

// resolveIndividually settles each unresolved ledger bet with its own escrow call
func (c *Coordinator) resolveIndividually(ctx context.Context, contract string, grade float64, report *ResolutionReport) ([]settlement.Resolution, error) {
	open, err := c.repos.Bets.ListUnresolvedByContract(ctx, contract)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved bets: %w", err)
	}

	results := make([]settlement.Resolution, 0, len(open))
	var lastErr error
	for _, b := range open {
		res, err := c.gateway.ResolveOne(ctx, contract, b.BetID, grade)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"contract_address": contract,
				"bet_id":           b.BetID,
			}).Warn("Bet resolution failed")
			lastErr = err
			continue
		}
		results = append(results, *res)
	}
	return results, lastErr
}

// backfill writes one escrow settlement into the ledger
func (c *Coordinator) backfill(ctx context.Context, course *models.Course, contract string, grade float64, res settlement.Resolution, report *ResolutionReport) {
	fail := func(reason string, err error) {
		report.Failed = append(report.Failed, FailedBet{BetID: res.BetID, Reason: reason, Error: err.Error()})
		c.audit.LogInconsistency(logger.Inconsistency{
			Reason:     reason,
			UserID:     course.UserID.String(),
			CourseCode: course.Code,
			Contract:   contract,
			BetID:      res.BetID,
			TxHash:     res.TransactionHash,
		}, err)
		metrics.RecordInconsistency(reason)
	}

	bet, err := c.repos.Bets.GetByBetID(ctx, res.BetID, contract)
	if err != nil {
		fail(ReasonSettlementUnrecorded, fmt.Errorf("failed to load bet: %w", err))
		return
	}

	if expected := market.Wins(grade, bet.GradeThreshold); expected != res.Won {
		c.logger.WithFields(logrus.Fields{
			"bet_id":          bet.BetID,
			"grade_threshold": bet.GradeThreshold,
			"actual_grade":    grade,
			"escrow_won":      res.Won,
		}).Warn("Escrow outcome differs from threshold rule, recording escrow outcome")
	}

	profit := market.Profit(bet.BetAmount, res.Won)
	if err := c.repos.Bets.MarkResolved(ctx, res.BetID, contract, profit, res.Won, c.now()); err != nil {
		reason := ReasonSettlementUnrecorded
		if errors.Is(err, models.ErrResolutionConflict) {
			reason = ReasonSettlementConflict
		}
		fail(reason, err)
		return
	}

	if !bet.Resolved {
		metrics.RecordBetSettled(res.Won)
	}
	report.Settled = append(report.Settled, SettledBet{BetID: res.BetID, Won: res.Won, Profit: profit})
}

func (c *Coordinator) finishResolution(ctx context.Context, report *ResolutionReport, start time.Time) {
	settled := make([]int64, 0, len(report.Settled))
	for _, s := range report.Settled {
		settled = append(settled, s.BetID)
	}
	unsettled := make([]int64, 0, len(report.Failed)+len(report.Pending))
	for _, f := range report.Failed {
		unsettled = append(unsettled, f.BetID)
	}
	unsettled = append(unsettled, report.Pending...)

	c.audit.LogCourseResolution(report.UserID, report.CourseCode, report.Grade, settled, unsettled)
	metrics.RecordCourseResolved(report.Status, time.Since(start).Seconds())

	evt := events.CourseResolved{
		UserID:          report.UserID,
		CourseCode:      report.CourseCode,
		Grade:           report.Grade,
		ContractAddress: report.ContractAddress,
		ResolvedBets:    settled,
		FailedBets:      unsettled,
	}
	if err := c.publisher.PublishCourseResolved(ctx, evt); err != nil {
		c.logger.WithError(err).WithField("course_code", report.CourseCode).Warn("Failed to publish course resolution")
	}
}
