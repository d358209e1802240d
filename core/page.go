package core

import (
	"math"
	"strings"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// PageParams is a normalized page request. Build it with NormalizePage.
type PageParams struct {
	Page   int
	Limit  int
	Skip   int
	Search string
}

// NormalizePage clamps raw page inputs. It never fails: page < 1 becomes 1,
// limit is clamped to [1, MaxPageLimit], page is capped so Skip+Limit fits
// in an int, and the search term is trimmed.
func NormalizePage(page, limit int, search string) PageParams {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return PageParams{
		Page:   page,
		Limit:  limit,
		Skip:   (page - 1) * limit,
		Search: strings.TrimSpace(search),
	}
}
