/*
Package catalog serves cached course listings and a payer's enrolled courses.

PURPOSE:
  These reads populate the course:*, courses:* and enrolled:* namespaces
  that an enrollment invalidates. A listing read right after Enroll returns
  therefore sees the new learner and the new enrolled course.

VIEWS:
  public   published courses only
  admin    every course
  teacher  every course of one owner (OwnerID required)

SEE ALSO:
  - cache/keys.go: Key builders and EnrollmentPatterns
  - enrollment/orchestrator.go: The writer that invalidates these keys
*/
package catalog

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/cache"
	"github.com/warp/enrollment-engine/core"
)

type View string

const (
	ViewPublic  View = "public"
	ViewAdmin   View = "admin"
	ViewTeacher View = "teacher"
)

// ParseView maps a query value to a View. Empty means public.
func ParseView(s string) (View, error) {
	switch v := View(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return ViewPublic, nil
	case ViewPublic, ViewAdmin, ViewTeacher:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown view %q", core.ErrInvalidRequest, s)
	}
}

type CourseQuery struct {
	View    View
	OwnerID core.UserID
	Page    int
	Limit   int
	Search  string
}

// CourseSummary is a listing row. The full document is served by Course.
type CourseSummary struct {
	ID           core.CourseID     `json:"id"`
	Title        string            `json:"title"`
	OwnerID      core.UserID       `json:"owner_id"`
	Price        decimal.Decimal   `json:"price"`
	Currency     string            `json:"currency"`
	Status       core.CourseStatus `json:"status"`
	ChapterCount int               `json:"chapter_count"`
	LearnerCount int               `json:"learner_count"`
	CreatedAt    time.Time         `json:"created_at"`
}

type CoursePage struct {
	Courses    []CourseSummary `json:"courses"`
	Total      int             `json:"total"`
	TotalPages int             `json:"total_pages"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
}

type EnrolledCourse struct {
	CourseID       core.CourseID `json:"course_id"`
	Title          string        `json:"title"`
	OwnerID        core.UserID   `json:"owner_id"`
	Progress       int           `json:"progress"`
	EnrolledAt     time.Time     `json:"enrolled_at"`
	LastAccessedAt time.Time     `json:"last_accessed_at"`
}

type EnrolledPage struct {
	Courses    []EnrolledCourse `json:"courses"`
	Total      int              `json:"total"`
	TotalPages int              `json:"total_pages"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Store interface {
	core.CourseStore
	core.ProgressStore
}

type Service struct {
	Store  Store
	Cache  *cache.Reader // nil disables caching
	Logger *log.Logger
}

func NewService(store Store, reader *cache.Reader, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{Store: store, Cache: reader, Logger: logger}
}

// Course returns the full course document.
func (s *Service) Course(ctx context.Context, id core.CourseID) (*core.Course, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: course id is required", core.ErrInvalidRequest)
	}
	return remember(ctx, s, cache.CourseKey(string(id)), func(ctx context.Context) (*core.Course, error) {
		c, err := s.Store.GetCourse(ctx, id)
		if err != nil {
			return nil, &core.StorageError{Op: "load course", Err: err}
		}
		if c == nil {
			return nil, fmt.Errorf("%w: %s", core.ErrCourseNotFound, id)
		}
		return c, nil
	})
}

// Courses lists courses for a view, newest first.
func (s *Service) Courses(ctx context.Context, q CourseQuery) (*CoursePage, error) {
	if q.View == "" {
		q.View = ViewPublic
	}
	filter := core.CourseFilter{}
	switch q.View {
	case ViewPublic:
		filter.Status = core.CoursePublished
	case ViewAdmin:
	case ViewTeacher:
		if q.OwnerID == "" {
			return nil, fmt.Errorf("%w: teacher view needs an owner id", core.ErrInvalidRequest)
		}
		filter.OwnerID = q.OwnerID
	default:
		return nil, fmt.Errorf("%w: unknown view %q", core.ErrInvalidRequest, q.View)
	}
	params := core.NormalizePage(q.Page, q.Limit, q.Search)

	key := cache.CoursesKey(string(q.View), string(q.OwnerID),
		strconv.Itoa(params.Page), strconv.Itoa(params.Limit), params.Search)
	return remember(ctx, s, key, func(ctx context.Context) (*CoursePage, error) {
		courses, err := s.Store.ListCourses(ctx, filter)
		if err != nil {
			return nil, &core.StorageError{Op: "list courses", Err: err}
		}
		term := strings.ToLower(params.Search)
		matched := make([]CourseSummary, 0, len(courses))
		for _, c := range courses {
			if term != "" && !strings.Contains(strings.ToLower(c.Title), term) {
				continue
			}
			matched = append(matched, summarize(c))
		}
		page := &CoursePage{Page: params.Page, Limit: params.Limit}
		page.Courses, page.Total, page.TotalPages = slicePage(matched, params)
		return page, nil
	})
}

// EnrolledCourses lists the payer's courses with completion percentages,
// most recent enrollment first.
func (s *Service) EnrolledCourses(ctx context.Context, payerID core.UserID, page, limit int) (*EnrolledPage, error) {
	if payerID == "" {
		return nil, fmt.Errorf("%w: payer id is required", core.ErrInvalidRequest)
	}
	params := core.NormalizePage(page, limit, "")

	key := cache.EnrolledKey(string(payerID), strconv.Itoa(params.Page), strconv.Itoa(params.Limit))
	return remember(ctx, s, key, func(ctx context.Context) (*EnrolledPage, error) {
		progress, err := s.Store.ListProgress(ctx, payerID)
		if err != nil {
			return nil, &core.StorageError{Op: "list progress", Err: err}
		}
		ids := make([]core.CourseID, len(progress))
		for i, p := range progress {
			ids[i] = p.CourseID
		}
		courses, err := s.Store.CoursesByIDs(ctx, ids)
		if err != nil {
			return nil, &core.StorageError{Op: "load enrolled courses", Err: err}
		}

		rows := make([]EnrolledCourse, 0, len(progress))
		for _, p := range progress {
			c, ok := courses[p.CourseID]
			if !ok {
				s.Logger.Printf("[Catalog] progress for missing course %s (payer %s)", p.CourseID, payerID)
				continue
			}
			rows = append(rows, EnrolledCourse{
				CourseID:       c.ID,
				Title:          c.Title,
				OwnerID:        c.OwnerID,
				Progress:       p.CompletionPercent(),
				EnrolledAt:     p.EnrollmentDate,
				LastAccessedAt: p.LastAccessedAt,
			})
		}
		out := &EnrolledPage{Page: params.Page, Limit: params.Limit}
		out.Courses, out.Total, out.TotalPages = slicePage(rows, params)
		return out, nil
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func remember[T any](ctx context.Context, s *Service, key string, compute func(context.Context) (T, error)) (T, error) {
	if s.Cache == nil {
		return compute(ctx)
	}
	return cache.Remember(ctx, s.Cache, key, compute)
}

func summarize(c core.Course) CourseSummary {
	return CourseSummary{
		ID:           c.ID,
		Title:        c.Title,
		OwnerID:      c.OwnerID,
		Price:        c.Price,
		Currency:     c.Currency,
		Status:       c.Status,
		ChapterCount: c.ChapterCount(),
		LearnerCount: len(c.Enrollments),
		CreatedAt:    c.CreatedAt,
	}
}

func slicePage[T any](all []T, params core.PageParams) (rows []T, total, totalPages int) {
	total = len(all)
	totalPages = (total + params.Limit - 1) / params.Limit
	rows = []T{}
	if params.Skip < total {
		end := params.Skip + params.Limit
		if end > total {
			end = total
		}
		rows = all[params.Skip:end]
	}
	return rows, total, totalPages
}
