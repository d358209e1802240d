package enrollment

import (
	"time"

	"github.com/warp/enrollment-engine/core"
)

// NewProgress builds the zeroed progress record for payer in c.
// The section/chapter shape mirrors the course as it is right now; later
// course edits do not reshape existing records.
func NewProgress(c core.Course, payerID core.UserID, at time.Time) core.CourseProgress {
	sections := make([]core.SectionProgress, len(c.Sections))
	for i, s := range c.Sections {
		chapters := make([]core.ChapterProgress, len(s.Chapters))
		for j, ch := range s.Chapters {
			chapters[j] = core.ChapterProgress{ChapterID: ch.ID}
		}
		sections[i] = core.SectionProgress{SectionID: s.ID, Chapters: chapters}
	}
	return core.CourseProgress{
		PayerID:         payerID,
		CourseID:        c.ID,
		EnrollmentDate:  at,
		OverallProgress: 0,
		Sections:        sections,
		LastAccessedAt:  at,
	}
}
