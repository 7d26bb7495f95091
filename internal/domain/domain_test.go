package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// Site
// ============================================================================

func TestSite_Normalize_TrimsNameAndLink(t *testing.T) {
	s := Site{Name: "  Bakery ", Link: "\thttps://bakery.example\n", Theme: " Retro "}
	s.Normalize()

	assert.Equal(t, "Bakery", s.Name)
	assert.Equal(t, "https://bakery.example", s.Link)
	assert.Equal(t, " Retro ", s.Theme, "theme is stored as given")
}

func TestSite_MissingFields(t *testing.T) {
	assert.Empty(t, (&Site{Name: "a", Link: "b", Theme: "c", Developer: "d"}).MissingFields())
	assert.Equal(t, []string{"name", "link", "theme", "developer"}, (&Site{Theme: "  "}).MissingFields())
}

func TestSite_Apply_OnlyTouchesSetFields(t *testing.T) {
	delivered := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	orig := Site{ID: "s1", Name: "Bakery", Link: "https://b", Description: "old", Theme: "Retro", Developer: "Ana", DeliveredAt: delivered}

	name := "  Bakery 2 "
	desc := ""
	merged := orig.Apply(SitePatch{Name: &name, Description: &desc})

	assert.Equal(t, "Bakery 2", merged.Name)
	assert.Equal(t, "", merged.Description)
	assert.Equal(t, "https://b", merged.Link)
	assert.Equal(t, "Retro", merged.Theme)
	assert.Equal(t, delivered, merged.DeliveredAt)
	assert.Equal(t, "Bakery", orig.Name, "receiver is not mutated")
}

// ============================================================================
// Review
// ============================================================================

func TestValidRating(t *testing.T) {
	for _, r := range []float64{1, 1.5, 4.2, 5} {
		assert.True(t, ValidRating(r), "%v", r)
	}
	for _, r := range []float64{0, 0.99, 5.01, -1, math.NaN(), math.Inf(1)} {
		assert.False(t, ValidRating(r), "%v", r)
	}
}

// ============================================================================
// Roles
// ============================================================================

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole(RoleUser))
	assert.True(t, IsValidRole(RoleAdmin))
	assert.False(t, IsValidRole("ADMIN"))
	assert.False(t, IsValidRole(""))
	assert.True(t, Caller{Role: RoleAdmin}.IsAdmin())
	assert.False(t, Caller{Role: RoleUser}.IsAdmin())
}

// ============================================================================
// Sort keys
// ============================================================================

func TestParseSortKey(t *testing.T) {
	tests := map[string]SortKey{
		"rating":      SortByRating,
		"reviewCount": SortByReviewCount,
		"name":        SortByNameAscending,
		"":            SortUnspecified,
		"Rating":      SortUnspecified,
		"popularity":  SortUnspecified,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseSortKey(in), "input %q", in)
	}
}

func TestSortKey_StringRoundTrip(t *testing.T) {
	for _, k := range []SortKey{SortByRating, SortByReviewCount, SortByNameAscending} {
		assert.Equal(t, k, ParseSortKey(k.String()))
	}
	assert.Equal(t, "unspecified", SortUnspecified.String())
}
