package feed

import (
	"encoding/json"

	"github.com/pscheid92/trafficpulse/internal/domain"
)

type wirePage struct {
	Copyright  string         `json:"copyright"`
	Pagination wirePagination `json:"pagination"`
	Messages   []wireMessage  `json:"messages"`
}

type wirePagination struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalHits  int `json:"totalhits"`
	TotalPages int `json:"totalpages"`
}

type wireMessage struct {
	ID            int64   `json:"id"`
	CreatedDate   string  `json:"createddate"`
	ExactLocation string  `json:"exactlocation"`
	Description   string  `json:"description"`
	Title         string  `json:"title"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Category      int     `json:"category"`
	Subcategory   string  `json:"subcategory"`
}

// Decode parses one raw page. Any record with a bad timestamp fails the whole page.
func Decode(raw []byte) (*domain.Page, error) {
	var wp wirePage
	if err := json.Unmarshal(raw, &wp); err != nil {
		return nil, &domain.DecodeError{Kind: domain.DecodeMalformed, Err: err}
	}

	records := make([]domain.TrafficRecord, 0, len(wp.Messages))
	for _, m := range wp.Messages {
		createdAt, err := ParseTimestamp(m.CreatedDate)
		if err != nil {
			return nil, err
		}
		records = append(records, domain.TrafficRecord{
			ID:          m.ID,
			CreatedAt:   createdAt,
			Location:    m.ExactLocation,
			Description: m.Description,
			Title:       m.Title,
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
			Category:    domain.Category(m.Category),
			Subcategory: m.Subcategory,
		})
	}

	return &domain.Page{
		Copyright: wp.Copyright,
		Pagination: domain.Pagination{
			Page:       wp.Pagination.Page,
			Size:       wp.Pagination.Size,
			TotalHits:  wp.Pagination.TotalHits,
			TotalPages: wp.Pagination.TotalPages,
		},
		Records: records,
	}, nil
}
