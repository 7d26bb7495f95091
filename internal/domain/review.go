package domain

import (
	"math"
	"time"
)

// Rating bounds, inclusive.
const (
	MinRating = 1.0
	MaxRating = 5.0
)

// Review is a rating left by a registered user on a site. SiteID and Author
// never change after creation.
type Review struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"site_id"`
	Rating    float64   `json:"rating"`
	Comment   string    `json:"comment"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReviewPatch holds the mutable fields of a review. Nil fields are left as is.
type ReviewPatch struct {
	Rating  *float64
	Comment *string
}

// ValidRating reports whether r lies in [MinRating, MaxRating].
func ValidRating(r float64) bool {
	return !math.IsNaN(r) && r >= MinRating && r <= MaxRating
}
