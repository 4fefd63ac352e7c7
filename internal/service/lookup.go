package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yourusername/grade-market/internal/models"
	"github.com/yourusername/grade-market/internal/repository"
)

// loadUser resolves an identity key to its user
func loadUser(ctx context.Context, repos *repository.Repositories, op, sub string) (*models.User, error) {
	if strings.TrimSpace(sub) == "" {
		return nil, validationError(op, "user identity is required")
	}

	user, err := repos.Users.GetBySub(ctx, sub)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, opError(KindNotFound, ReasonUserNotFound, op, fmt.Errorf("user %q", sub))
		}
		return nil, fmt.Errorf("%s: failed to load user: %w", op, err)
	}
	return user, nil
}

// loadCourse resolves a user's course by code, odds included
func loadCourse(ctx context.Context, repos *repository.Repositories, op, sub, code string) (*models.User, *models.Course, error) {
	code = models.NormalizeCourseCode(code)
	if code == "" {
		return nil, nil, validationError(op, "course code is required")
	}

	user, err := loadUser(ctx, repos, op, sub)
	if err != nil {
		return nil, nil, err
	}

	course, err := repos.Courses.GetByCode(ctx, user.ID, code)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, opError(KindNotFound, ReasonCourseNotFound, op, fmt.Errorf("course %q", code))
		}
		return nil, nil, fmt.Errorf("%s: failed to load course: %w", op, err)
	}
	return user, course, nil
}

// gradeHistory returns the user's final grades in completion order
func gradeHistory(ctx context.Context, repos *repository.Repositories, user *models.User) ([]float64, error) {
	courses, err := repos.Courses.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}

	history := make([]float64, 0, len(courses))
	for _, c := range courses {
		if c.IsResolved() {
			history = append(history, *c.Grade)
		}
	}
	return history, nil
}
