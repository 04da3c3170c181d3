package domain

import (
	"fmt"
	"time"
)

// Category is the upstream's small integer classification of a traffic record.
type Category int

const (
	CategoryRoadTraffic       Category = 0
	CategoryPublicTransport   Category = 1
	CategoryPlannedDisruption Category = 2
	CategoryOther             Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryRoadTraffic:
		return "road traffic"
	case CategoryPublicTransport:
		return "public transport"
	case CategoryPlannedDisruption:
		return "planned disruption"
	case CategoryOther:
		return "other"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// TrafficRecord is one upstream traffic advisory. Records are compared by ID only:
// two records with the same ID are the same logical event even if other fields differ.
type TrafficRecord struct {
	ID          int64
	CreatedAt   time.Time
	Location    string
	Description string
	Title       string
	Latitude    float64
	Longitude   float64
	Category    Category
	Subcategory string
}

// Pagination describes where a page sits in the upstream feed.
type Pagination struct {
	Page       int
	Size       int
	TotalHits  int
	TotalPages int
}

// IsLastPage reports whether no further pages exist beyond this one.
func (p Pagination) IsLastPage() bool {
	return p.Page >= p.TotalPages
}

// Page is one decoded fetch result.
type Page struct {
	Copyright  string
	Pagination Pagination
	Records    []TrafficRecord
}
