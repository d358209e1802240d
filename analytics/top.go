package analytics

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
)

const DefaultTopLimit = 5

type TopCourse struct {
	CourseID        core.CourseID   `json:"course_id"`
	Name            string          `json:"name"`
	Revenue         decimal.Decimal `json:"revenue"`
	EnrollmentCount int             `json:"enrollment_count"`
}

// TopEarners ranks courses by enrollment count, highest first. A course's
// enrollments are its transactions in txs, so the ranking follows the
// period txs was drawn from. Revenue (sum of amount*split) is reported but
// does not affect the order. Courses without enrollments are left out;
// ties keep the input order.
func TopEarners(txs []core.Transaction, courses []core.Course, split decimal.Decimal, limit int) []TopCourse {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	revenue := make(map[core.CourseID]decimal.Decimal)
	count := make(map[core.CourseID]int)
	for _, tx := range txs {
		revenue[tx.CourseID] = revenue[tx.CourseID].Add(tx.Split(split))
		count[tx.CourseID]++
	}

	top := make([]TopCourse, 0, len(courses))
	for _, c := range courses {
		if count[c.ID] == 0 {
			continue
		}
		top = append(top, TopCourse{
			CourseID:        c.ID,
			Name:            c.Title,
			Revenue:         revenue[c.ID],
			EnrollmentCount: count[c.ID],
		})
	}

	sort.SliceStable(top, func(i, j int) bool {
		return top[i].EnrollmentCount > top[j].EnrollmentCount
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top
}
