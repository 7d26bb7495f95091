package domain

import (
	"strings"
	"time"
)

// Site is a delivered website in the catalog. (Name, Link) is unique.
type Site struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Link        string    `json:"link"`
	Description string    `json:"description"`
	Theme       string    `json:"theme"`
	Developer   string    `json:"developer"`
	DeliveredAt time.Time `json:"delivered_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SitePatch holds the fields of an UpdateSite request. Nil fields are left as is.
type SitePatch struct {
	Name        *string
	Link        *string
	Description *string
	Theme       *string
	Developer   *string
	DeliveredAt *time.Time
}

// Normalize trims the identifying fields.
func (s *Site) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Link = strings.TrimSpace(s.Link)
}

// MissingFields returns the names of required fields that are empty.
func (s *Site) MissingFields() []string {
	var missing []string
	if s.Name == "" {
		missing = append(missing, "name")
	}
	if s.Link == "" {
		missing = append(missing, "link")
	}
	if strings.TrimSpace(s.Theme) == "" {
		missing = append(missing, "theme")
	}
	if strings.TrimSpace(s.Developer) == "" {
		missing = append(missing, "developer")
	}
	return missing
}

// Apply merges p into a copy of s and returns it normalized.
func (s Site) Apply(p SitePatch) Site {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Link != nil {
		s.Link = *p.Link
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Developer != nil {
		s.Developer = *p.Developer
	}
	if p.DeliveredAt != nil {
		s.DeliveredAt = *p.DeliveredAt
	}
	s.Normalize()
	return s
}

// SiteDetails is a site together with its reviews, newest first.
type SiteDetails struct {
	Site    Site     `json:"site"`
	Reviews []Review `json:"reviews"`
}
