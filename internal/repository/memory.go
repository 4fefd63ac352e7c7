package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yourusername/grade-market/internal/models"
)

// memoryState is the shared in-process store behind the memory repositories.
// Values are copied on the way in and out so callers never alias stored records.
type memoryState struct {
	mu      sync.Mutex
	users   map[string]*models.User
	courses map[uuid.UUID]*models.Course
	odds    map[uuid.UUID]map[float64]*models.OddsEntry
	bets    []*models.Bet
	now     func() time.Time
}

// NewMemoryRepositories returns repositories backed by process memory
func NewMemoryRepositories() *Repositories {
	s := &memoryState{
		users:   make(map[string]*models.User),
		courses: make(map[uuid.UUID]*models.Course),
		odds:    make(map[uuid.UUID]map[float64]*models.OddsEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}

	return &Repositories{
		Users:   &memoryUsers{s},
		Courses: &memoryCourses{s},
		Odds:    &memoryOdds{s},
		Bets:    &memoryBets{s},
		Ledger:  &memoryLedger{s},
	}
}

type memoryUsers struct{ s *memoryState }

func (r *memoryUsers) GetBySub(_ context.Context, sub string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[sub]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *u
	return &out, nil
}

func (r *memoryUsers) EnsureBySub(_ context.Context, sub, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[sub]
	if !ok {
		u = &models.User{ID: uuid.New(), Sub: sub, Email: email, CreatedAt: r.s.now()}
		r.s.users[sub] = u
	} else if email != "" {
		u.Email = email
	}
	out := *u
	return &out, nil
}

type memoryCourses struct{ s *memoryState }

func (r *memoryCourses) Create(_ context.Context, course *models.Course) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	course.Code = models.NormalizeCourseCode(course.Code)
	for _, existing := range r.s.courses {
		if existing.UserID == course.UserID && existing.Code == course.Code {
			return models.ErrDuplicateKey
		}
	}
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	now := r.s.now()
	course.CreatedAt, course.UpdatedAt = now, now

	stored := copyCourse(course)
	stored.Odds = nil
	r.s.courses[course.ID] = stored
	r.s.odds[course.ID] = make(map[float64]*models.OddsEntry)
	for _, e := range course.Odds {
		entry := e
		entry.CourseID = course.ID
		entry.UpdatedAt = now
		r.s.odds[course.ID][e.Threshold] = &entry
	}
	return nil
}

func (r *memoryCourses) GetByCode(_ context.Context, userID uuid.UUID, code string) (*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	code = models.NormalizeCourseCode(code)
	for _, c := range r.s.courses {
		if c.UserID == userID && c.Code == code {
			return r.s.courseWithOdds(c), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memoryCourses) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Course
	for _, c := range r.s.courses {
		if c.UserID == userID {
			out = append(out, r.s.courseWithOdds(c))
		}
	}
	sortByCompletion(out)
	return out, nil
}

func (r *memoryCourses) SetContractIfUnset(_ context.Context, courseID uuid.UUID, address string) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.courses[courseID]
	if !ok {
		return "", models.ErrNotFound
	}
	if !c.HasContract() {
		addr := address
		c.Contract = &addr
		c.UpdatedAt = r.s.now()
	}
	return *c.Contract, nil
}

func (r *memoryCourses) Resolve(_ context.Context, courseID uuid.UUID, grade float64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.courses[courseID]
	if !ok {
		return false, models.ErrNotFound
	}
	if c.IsResolved() {
		if *c.Grade != grade {
			return false, models.ErrGradeConflict
		}
		return false, nil
	}

	g := grade
	c.Grade = &g
	c.Past = true
	if c.CompletedAt == nil {
		completed := at
		c.CompletedAt = &completed
	}
	c.UpdatedAt = r.s.now()
	for _, e := range r.s.odds[courseID] {
		e.Shares = 0
		e.UpdatedAt = c.UpdatedAt
	}
	return true, nil
}

func (r *memoryCourses) ListPastWithPendingBets(_ context.Context) ([]*models.Course, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	pending := make(map[string]bool)
	for _, b := range r.s.bets {
		if !b.Resolved {
			pending[b.ContractAddress] = true
		}
	}

	var out []*models.Course
	for _, c := range r.s.courses {
		if c.IsResolved() && c.HasContract() && pending[*c.Contract] {
			out = append(out, r.s.courseWithOdds(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

type memoryOdds struct{ s *memoryState }

func (r *memoryOdds) List(_ context.Context, courseID uuid.UUID) ([]models.OddsEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.sortedOdds(courseID), nil
}

func (r *memoryOdds) Upsert(_ context.Context, courseID uuid.UUID, buckets []models.Bucket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entries, ok := r.s.odds[courseID]
	if !ok {
		return models.ErrNotFound
	}
	now := r.s.now()
	for _, b := range buckets {
		p := b.Probability
		if e, exists := entries[b.Threshold]; exists {
			e.Probability = &p
			e.UpdatedAt = now
			continue
		}
		entries[b.Threshold] = &models.OddsEntry{CourseID: courseID, Threshold: b.Threshold, Probability: &p, UpdatedAt: now}
	}
	return nil
}

func (r *memoryOdds) IncrementShares(_ context.Context, courseID uuid.UUID, threshold float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.incrementShares(courseID, threshold)
}

type memoryBets struct{ s *memoryState }

func (r *memoryBets) Append(_ context.Context, bet *models.Bet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.appendBet(bet)
}

func (r *memoryBets) ListForUser(_ context.Context, userID uuid.UUID) ([]*models.Bet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.Bet{}
	for _, b := range r.s.bets {
		if b.UserID == userID {
			out = append(out, copyBet(b))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].BetID > out[j].BetID
		}
		return out[i].PlacedAt.After(out[j].PlacedAt)
	})
	return out, nil
}

func (r *memoryBets) ListUnresolvedByContract(_ context.Context, contract string) ([]*models.Bet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.Bet{}
	for _, b := range r.s.bets {
		if b.ContractAddress == contract && !b.Resolved {
			out = append(out, copyBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BetID < out[j].BetID })
	return out, nil
}

func (r *memoryBets) GetByBetID(_ context.Context, betID int64, contract string) (*models.Bet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b := r.s.findBet(betID, contract); b != nil {
		return copyBet(b), nil
	}
	return nil, models.ErrNotFound
}

func (r *memoryBets) MarkResolved(_ context.Context, betID int64, contract string, profit decimal.Decimal, won bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b := r.s.findBet(betID, contract)
	if b == nil {
		return models.ErrNotFound
	}
	if b.Resolved {
		if b.MatchesResolution(profit, won) {
			return nil
		}
		return fmt.Errorf("%w: bet %d on %s", models.ErrResolutionConflict, betID, contract)
	}

	p, w, resolvedAt := profit, won, at
	b.Resolved = true
	b.Profit = &p
	b.Won = &w
	b.ResolvedAt = &resolvedAt
	return nil
}

type memoryLedger struct{ s *memoryState }

func (r *memoryLedger) RecordPlacement(_ context.Context, bet *models.Bet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entries := r.s.odds[bet.CourseID]
	if _, ok := entries[bet.GradeThreshold]; !ok {
		return fmt.Errorf("threshold %v: %w", bet.GradeThreshold, models.ErrNotFound)
	}
	if err := r.s.appendBet(bet); err != nil {
		return err
	}
	return r.s.incrementShares(bet.CourseID, bet.GradeThreshold)
}

func (s *memoryState) appendBet(bet *models.Bet) error {
	if s.findBet(bet.BetID, bet.ContractAddress) != nil {
		return models.ErrDuplicateKey
	}
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	if bet.PlacedAt.IsZero() {
		bet.PlacedAt = s.now()
	}
	s.bets = append(s.bets, copyBet(bet))
	return nil
}

func (s *memoryState) findBet(betID int64, contract string) *models.Bet {
	for _, b := range s.bets {
		if b.BetID == betID && b.ContractAddress == contract {
			return b
		}
	}
	return nil
}

func (s *memoryState) incrementShares(courseID uuid.UUID, threshold float64) error {
	e, ok := s.odds[courseID][threshold]
	if !ok {
		return models.ErrNotFound
	}
	e.Shares++
	e.UpdatedAt = s.now()
	return nil
}

func (s *memoryState) sortedOdds(courseID uuid.UUID) []models.OddsEntry {
	out := make([]models.OddsEntry, 0, len(s.odds[courseID]))
	for _, e := range s.odds[courseID] {
		entry := *e
		if e.Probability != nil {
			p := *e.Probability
			entry.Probability = &p
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold < out[j].Threshold })
	return out
}

func (s *memoryState) courseWithOdds(c *models.Course) *models.Course {
	out := copyCourse(c)
	out.Odds = s.sortedOdds(c.ID)
	return out
}

func copyCourse(c *models.Course) *models.Course {
	out := *c
	if c.Grade != nil {
		g := *c.Grade
		out.Grade = &g
	}
	if c.Contract != nil {
		addr := *c.Contract
		out.Contract = &addr
	}
	if c.CompletedAt != nil {
		at := *c.CompletedAt
		out.CompletedAt = &at
	}
	return &out
}

func copyBet(b *models.Bet) *models.Bet {
	out := *b
	if b.TransactionHash != nil {
		h := *b.TransactionHash
		out.TransactionHash = &h
	}
	if b.Profit != nil {
		p := *b.Profit
		out.Profit = &p
	}
	if b.Won != nil {
		w := *b.Won
		out.Won = &w
	}
	if b.ResolvedAt != nil {
		at := *b.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

func sortByCompletion(courses []*models.Course) {
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i].CompletedAt, courses[j].CompletedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return courses[i].CreatedAt.Before(courses[j].CreatedAt)
	})
}
