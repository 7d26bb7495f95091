// Package aggregate derives rating statistics from raw rating sums and counts.
// Everything here is a pure function of its inputs; callers fetch the tallies
// fresh for every request.
package aggregate

import (
	"cmp"
	"slices"

	"github.com/utafrali/siterank/internal/domain"
)

// Tally is the running sum and count of the ratings of one subject.
type Tally struct {
	Sum   float64
	Count int
}

// Add folds another tally into t.
func (t Tally) Add(o Tally) Tally {
	return Tally{Sum: t.Sum + o.Sum, Count: t.Count + o.Count}
}

// Mean returns the arithmetic mean, or 0 for an empty tally.
func (t Tally) Mean() float64 {
	if t.Count == 0 {
		return 0
	}
	return t.Sum / float64(t.Count)
}

// PerSite returns one stat for every site, including sites absent from
// tallies. Ordered by average desc, then name asc, then id asc.
func PerSite(sites []domain.Site, tallies map[string]Tally) []domain.SiteStat {
	stats := make([]domain.SiteStat, 0, len(sites))
	for _, s := range sites {
		t := tallies[s.ID]
		stats = append(stats, domain.SiteStat{
			SiteID:        s.ID,
			SiteName:      s.Name,
			AverageRating: t.Mean(),
			ReviewCount:   t.Count,
		})
	}

	slices.SortFunc(stats, func(a, b domain.SiteStat) int {
		if c := cmp.Compare(b.AverageRating, a.AverageRating); c != 0 {
			return c
		}
		if c := cmp.Compare(a.SiteName, b.SiteName); c != 0 {
			return c
		}
		return cmp.Compare(a.SiteID, b.SiteID)
	})
	return stats
}

// Groups returns one stat per non-empty tally, ordered by average desc then key asc.
func Groups(tallies map[string]Tally) []domain.GroupStat {
	stats := make([]domain.GroupStat, 0, len(tallies))
	for key, t := range tallies {
		if t.Count == 0 {
			continue
		}
		stats = append(stats, domain.GroupStat{
			Key:           key,
			AverageRating: t.Mean(),
			ReviewCount:   t.Count,
		})
	}

	slices.SortFunc(stats, func(a, b domain.GroupStat) int {
		if c := cmp.Compare(b.AverageRating, a.AverageRating); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return stats
}

// WithStats decorates every site with its rating and review count and orders
// the result by key. SortUnspecified keeps the input order.
func WithStats(sites []domain.Site, tallies map[string]Tally, key domain.SortKey) []domain.SiteWithStats {
	out := make([]domain.SiteWithStats, 0, len(sites))
	for _, s := range sites {
		t := tallies[s.ID]
		out = append(out, domain.SiteWithStats{
			Site:        s,
			Rating:      t.Mean(),
			ReviewCount: t.Count,
		})
	}

	switch key {
	case domain.SortByRating:
		slices.SortStableFunc(out, func(a, b domain.SiteWithStats) int {
			return cmp.Compare(b.Rating, a.Rating)
		})
	case domain.SortByReviewCount:
		slices.SortStableFunc(out, func(a, b domain.SiteWithStats) int {
			return cmp.Compare(b.ReviewCount, a.ReviewCount)
		})
	case domain.SortByNameAscending:
		slices.SortStableFunc(out, func(a, b domain.SiteWithStats) int {
			return cmp.Compare(a.Name, b.Name)
		})
	}
	return out
}

// Total folds every tally into one.
func Total(tallies map[string]Tally) Tally {
	var total Tally
	for _, t := range tallies {
		total = total.Add(t)
	}
	return total
}
