package domain

import "time"

// DefaultHighRatingThreshold is the inclusive rating cut-off for HighRatingAuthors.
const DefaultHighRatingThreshold = 4.2

// SiteStat is the derived rating summary of a single site.
type SiteStat struct {
	SiteID        string  `json:"site_id"`
	SiteName      string  `json:"site_name"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// GroupStat is the derived rating summary of a theme or developer.
type GroupStat struct {
	Key           string  `json:"key"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// SiteWithStats is a site decorated with its computed rating.
type SiteWithStats struct {
	Site
	Rating      float64 `json:"rating"`
	ReviewCount int     `json:"review_count"`
}

// GlobalStats summarizes the whole rating store.
type GlobalStats struct {
	SitesReviewed   int     `json:"sites_reviewed"`
	DistinctAuthors int     `json:"distinct_authors"`
	TotalReviews    int     `json:"total_reviews"`
	AverageRating   float64 `json:"average_rating"`
}

// SiteFilterResult is the outcome of a theme or developer filter. NoMatch is
// set when no site matched; it is a signal for adapters, not an error.
type SiteFilterResult struct {
	Sites   []Site `json:"sites"`
	NoMatch bool   `json:"-"`
}

// HighRatingAuthor is a directory user who wrote at least one qualifying review.
type HighRatingAuthor struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// SortKey selects the ordering of SitesWithComputedStats.
type SortKey int

const (
	SortUnspecified SortKey = iota
	SortByRating
	SortByReviewCount
	SortByNameAscending
)

// ParseSortKey maps the external sort parameter to a SortKey. Unknown values
// fall back to SortUnspecified.
func ParseSortKey(s string) SortKey {
	switch s {
	case "rating":
		return SortByRating
	case "reviewCount":
		return SortByReviewCount
	case "name":
		return SortByNameAscending
	default:
		return SortUnspecified
	}
}

func (k SortKey) String() string {
	switch k {
	case SortByRating:
		return "rating"
	case SortByReviewCount:
		return "reviewCount"
	case SortByNameAscending:
		return "name"
	default:
		return "unspecified"
	}
}

// GroupKey selects the grouping dimension of a rating aggregate.
type GroupKey string

const (
	GroupBySite      GroupKey = "site"
	GroupByTheme     GroupKey = "theme"
	GroupByDeveloper GroupKey = "developer"
)
