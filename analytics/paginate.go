package analytics

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/enrollment-engine/core"
)

// Row is a ledger transaction joined with display data.
type Row struct {
	TransactionID core.TransactionID `json:"transaction_id"`
	CourseID      core.CourseID      `json:"course_id"`
	CourseTitle   string             `json:"course_title"`
	PayerID       core.UserID        `json:"payer_id"`
	PayerName     string             `json:"payer_name"`
	OwnerID       core.UserID        `json:"owner_id"`
	OwnerName     string             `json:"owner_name"`
	Amount        decimal.Decimal    `json:"amount"`
	EarnerAmount  decimal.Decimal    `json:"earner_amount"`
	Currency      string             `json:"currency"`
	Provider      string             `json:"provider"`
	ChargeID      string             `json:"charge_id"`
	CreatedAt     time.Time          `json:"created_at"`
}

func (r Row) matches(term string) bool {
	for _, field := range []string{r.CourseTitle, r.PayerName, r.OwnerName, r.Provider, r.ChargeID} {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// =============================================================================
// ENRICHER - Bulk-loaded lookup tables
// =============================================================================

type EnrichStore interface {
	CoursesByIDs(ctx context.Context, ids []core.CourseID) (map[core.CourseID]core.Course, error)
	UsersByIDs(ctx context.Context, ids []core.UserID) (map[core.UserID]core.User, error)
}

type Enricher struct {
	Courses map[core.CourseID]core.Course
	Users   map[core.UserID]core.User
	Split   decimal.Decimal
}

// NewEnricher loads every course, payer and owner referenced by txs with
// one bulk course lookup and one bulk user lookup.
func NewEnricher(ctx context.Context, store EnrichStore, txs []core.Transaction, split decimal.Decimal) (*Enricher, error) {
	courseIDs := make([]core.CourseID, 0, len(txs))
	seenCourse := make(map[core.CourseID]bool)
	userIDs := make([]core.UserID, 0, len(txs))
	seenUser := make(map[core.UserID]bool)

	for _, tx := range txs {
		if !seenCourse[tx.CourseID] {
			seenCourse[tx.CourseID] = true
			courseIDs = append(courseIDs, tx.CourseID)
		}
		if !seenUser[tx.PayerID] {
			seenUser[tx.PayerID] = true
			userIDs = append(userIDs, tx.PayerID)
		}
	}

	courses, err := store.CoursesByIDs(ctx, courseIDs)
	if err != nil {
		return nil, err
	}
	for _, c := range courses {
		if c.OwnerID != "" && !seenUser[c.OwnerID] {
			seenUser[c.OwnerID] = true
			userIDs = append(userIDs, c.OwnerID)
		}
	}
	users, err := store.UsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return &Enricher{Courses: courses, Users: users, Split: split}, nil
}

// Enrich joins tx with its course, payer and owner. Missing references
// leave the display fields empty.
func (e *Enricher) Enrich(tx core.Transaction) Row {
	row := Row{
		TransactionID: tx.ID,
		CourseID:      tx.CourseID,
		PayerID:       tx.PayerID,
		Amount:        tx.Amount,
		EarnerAmount:  tx.Split(e.Split),
		Currency:      tx.Currency,
		Provider:      tx.Provider,
		ChargeID:      tx.ExternalChargeID,
		CreatedAt:     tx.CreatedAt,
	}
	if c, ok := e.Courses[tx.CourseID]; ok {
		row.CourseTitle = c.Title
		row.OwnerID = c.OwnerID
		row.OwnerName = e.Users[c.OwnerID].Name
	}
	row.PayerName = e.Users[tx.PayerID].Name
	return row
}

// =============================================================================
// PAGINATE
// =============================================================================

type Page struct {
	Rows       []Row `json:"rows"`
	Total      int   `json:"total"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
}

// Paginate enriches all candidates, filters them once by the search term
// and slices the requested page out of the filtered set. Total and
// TotalPages always describe the filtered set.
func Paginate(candidates []core.Transaction, enrich *Enricher, params core.PageParams) Page {
	term := strings.ToLower(params.Search)

	filtered := make([]Row, 0, len(candidates))
	for _, tx := range candidates {
		row := enrich.Enrich(tx)
		if term == "" || row.matches(term) {
			filtered = append(filtered, row)
		}
	}

	page := Page{
		Rows:  []Row{},
		Total: len(filtered),
		Page:  params.Page,
		Limit: params.Limit,
	}
	if params.Limit > 0 {
		page.TotalPages = (page.Total + params.Limit - 1) / params.Limit
	}
	if params.Skip < len(filtered) {
		end := params.Skip + params.Limit
		if end > len(filtered) {
			end = len(filtered)
		}
		page.Rows = filtered[params.Skip:end]
	}
	return page
}
