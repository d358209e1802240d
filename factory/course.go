/*
Package factory provides JSON to Go course and user conversion.

PURPOSE:
  Converts JSON course definitions into core.Course documents and JSON user
  definitions into core.User records. Scenarios and seed files describe the
  catalog in JSON; the factory validates it and fills defaults.

JSON SCHEMA:
  {
    "id": "go-advanced",
    "title": "Advanced Go",
    "owner_id": "teacher-1",
    "price": "49.99",
    "currency": "usd",
    "status": "published",
    "created_at": "2025-01-15",
    "sections": [
      {
        "id": "s1",
        "title": "Concurrency",
        "chapters": [{"id": "c1", "title": "Goroutines"}]
      }
    ]
  }

KEY FEATURES:
  - Validates required fields and a non-negative price
  - Defaults currency to usd and status to published
  - Generates section ids (s1, s2) and chapter ids (s1-c1) when omitted
  - Rejects duplicate section or chapter ids
  - Never carries enrollments; those come from the enrollment flow only

USAGE:
  f := factory.NewCourseFactory()
  course, err := f.ParseCourse(jsonString)
  store.SaveCourse(ctx, *course)

SEE ALSO:
  - core/types.go: Course and User definitions
  - api/scenarios.go: Demo catalogs built from these definitions
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type CourseJSON struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	OwnerID   string          `json:"owner_id"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency,omitempty"`
	Status    string          `json:"status,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"` // 2006-01-02 or RFC3339
	Sections  []SectionJSON   `json:"sections,omitempty"`
}

type SectionJSON struct {
	ID       string        `json:"id,omitempty"`
	Title    string        `json:"title"`
	Chapters []ChapterJSON `json:"chapters,omitempty"`
}

type ChapterJSON struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title"`
}

type UserJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// =============================================================================
// COURSE FACTORY
// =============================================================================

type CourseFactory struct {
	// Now stamps courses without created_at.
	Now func() time.Time
}

func NewCourseFactory() *CourseFactory {
	return &CourseFactory{Now: time.Now}
}

// ParseCourse parses a JSON string into a Course.
func (f *CourseFactory) ParseCourse(jsonStr string) (*core.Course, error) {
	var cj CourseJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse course JSON: %v", core.ErrInvalidRequest, err)
	}
	return f.FromJSON(cj)
}

// ParseCourses parses a JSON array of courses.
func (f *CourseFactory) ParseCourses(jsonStr string) ([]core.Course, error) {
	var list []CourseJSON
	if err := json.Unmarshal([]byte(jsonStr), &list); err != nil {
		return nil, fmt.Errorf("%w: failed to parse course list JSON: %v", core.ErrInvalidRequest, err)
	}
	courses := make([]core.Course, 0, len(list))
	for i, cj := range list {
		c, err := f.FromJSON(cj)
		if err != nil {
			return nil, fmt.Errorf("course %d: %w", i, err)
		}
		courses = append(courses, *c)
	}
	return courses, nil
}

// FromJSON converts CourseJSON to a Course.
func (f *CourseFactory) FromJSON(cj CourseJSON) (*core.Course, error) {
	switch {
	case strings.TrimSpace(cj.ID) == "":
		return nil, fmt.Errorf("%w: course id is required", core.ErrInvalidRequest)
	case strings.TrimSpace(cj.Title) == "":
		return nil, fmt.Errorf("%w: course %s: title is required", core.ErrInvalidRequest, cj.ID)
	case strings.TrimSpace(cj.OwnerID) == "":
		return nil, fmt.Errorf("%w: course %s: owner_id is required", core.ErrInvalidRequest, cj.ID)
	case !core.ValidID(cj.ID) || !core.ValidID(cj.OwnerID):
		return nil, fmt.Errorf("%w: course %s: ids must not contain glob characters", core.ErrInvalidRequest, cj.ID)
	case cj.Price.IsNegative():
		return nil, fmt.Errorf("%w: course %s: price must not be negative", core.ErrInvalidRequest, cj.ID)
	}

	status, err := parseStatus(cj.Status)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", cj.ID, err)
	}
	createdAt, err := f.parseCreatedAt(cj.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", cj.ID, err)
	}
	sections, err := parseSections(cj.Sections)
	if err != nil {
		return nil, fmt.Errorf("course %s: %w", cj.ID, err)
	}

	currency := strings.ToLower(strings.TrimSpace(cj.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &core.Course{
		ID:        core.CourseID(cj.ID),
		Title:     cj.Title,
		OwnerID:   core.UserID(cj.OwnerID),
		Price:     cj.Price,
		Currency:  currency,
		Status:    status,
		Sections:  sections,
		CreatedAt: createdAt,
	}, nil
}

// ToJSON converts a Course back to its definition. Enrollments are dropped.
func (f *CourseFactory) ToJSON(c core.Course) CourseJSON {
	cj := CourseJSON{
		ID:        string(c.ID),
		Title:     c.Title,
		OwnerID:   string(c.OwnerID),
		Price:     c.Price,
		Currency:  c.Currency,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, s := range c.Sections {
		sj := SectionJSON{ID: s.ID, Title: s.Title}
		for _, ch := range s.Chapters {
			sj.Chapters = append(sj.Chapters, ChapterJSON{ID: ch.ID, Title: ch.Title})
		}
		cj.Sections = append(cj.Sections, sj)
	}
	return cj
}

// ParseUser parses a JSON string into a User. Role defaults to learner.
func (f *CourseFactory) ParseUser(jsonStr string) (*core.User, error) {
	var uj UserJSON
	if err := json.Unmarshal([]byte(jsonStr), &uj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse user JSON: %v", core.ErrInvalidRequest, err)
	}
	return f.UserFromJSON(uj)
}

func (f *CourseFactory) UserFromJSON(uj UserJSON) (*core.User, error) {
	if strings.TrimSpace(uj.ID) == "" {
		return nil, fmt.Errorf("%w: user id is required", core.ErrInvalidRequest)
	}
	if !core.ValidID(uj.ID) {
		return nil, fmt.Errorf("%w: user %s: id must not contain glob characters", core.ErrInvalidRequest, uj.ID)
	}
	role, err := parseRole(uj.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", uj.ID, err)
	}
	name := uj.Name
	if name == "" {
		name = uj.ID
	}
	return &core.User{
		ID:        core.UserID(uj.ID),
		Name:      name,
		Email:     uj.Email,
		Role:      role,
		CreatedAt: f.now(),
	}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseStatus(s string) (core.CourseStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "published":
		return core.CoursePublished, nil
	case "draft":
		return core.CourseDraft, nil
	case "archived":
		return core.CourseArchived, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", core.ErrInvalidRequest, s)
	}
}

func parseRole(s string) (core.Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "learner", "student":
		return core.RoleLearner, nil
	case "teacher", "instructor":
		return core.RoleTeacher, nil
	case "admin":
		return core.RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", core.ErrInvalidRequest, s)
	}
}

func (f *CourseFactory) parseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return f.now(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid created_at %q", core.ErrInvalidRequest, s)
	}
	return t, nil
}

func parseSections(list []SectionJSON) ([]core.Section, error) {
	sections := make([]core.Section, 0, len(list))
	seenSection := make(map[string]bool)
	seenChapter := make(map[string]bool)

	for i, sj := range list {
		sid := sj.ID
		if sid == "" {
			sid = fmt.Sprintf("s%d", i+1)
		}
		if seenSection[sid] {
			return nil, fmt.Errorf("%w: duplicate section id %q", core.ErrInvalidRequest, sid)
		}
		seenSection[sid] = true

		section := core.Section{ID: sid, Title: sj.Title, Chapters: make([]core.Chapter, 0, len(sj.Chapters))}
		for j, cj := range sj.Chapters {
			cid := cj.ID
			if cid == "" {
				cid = fmt.Sprintf("%s-c%d", sid, j+1)
			}
			if seenChapter[cid] {
				return nil, fmt.Errorf("%w: duplicate chapter id %q", core.ErrInvalidRequest, cid)
			}
			seenChapter[cid] = true
			section.Chapters = append(section.Chapters, core.Chapter{ID: cid, Title: cj.Title})
		}
		sections = append(sections, section)
	}
	return sections, nil
}

func (f *CourseFactory) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// =============================================================================
// PRESET DEFINITIONS
// =============================================================================

// CourseDefinitionJSON builds a course definition with one section per
// entry of chapters, each holding that many numbered chapters.
func CourseDefinitionJSON(id, title, ownerID, price string, chapters ...int) string {
	sections := make([]map[string]any, 0, len(chapters))
	for i, n := range chapters {
		chs := make([]map[string]any, 0, n)
		for j := 0; j < n; j++ {
			chs = append(chs, map[string]any{"title": fmt.Sprintf("Chapter %d.%d", i+1, j+1)})
		}
		sections = append(sections, map[string]any{
			"title":    fmt.Sprintf("Part %d", i+1),
			"chapters": chs,
		})
	}
	cj := map[string]any{
		"id":       id,
		"title":    title,
		"owner_id": ownerID,
		"price":    price,
		"sections": sections,
	}
	b, _ := json.MarshalIndent(cj, "", "  ")
	return string(b)
}
