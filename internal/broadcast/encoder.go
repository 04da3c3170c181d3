package broadcast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/feed"
)

// WireFormat selects how records are rendered for subscribers.
type WireFormat string

const (
	FormatJSON WireFormat = "json"
	FormatText WireFormat = "text"
)

func (f WireFormat) Valid() bool {
	return f == FormatJSON || f == FormatText
}

// Encoder renders one record as one websocket text message.
type Encoder interface {
	Encode(record domain.TrafficRecord) ([]byte, error)
}

func NewEncoder(format WireFormat) (Encoder, error) {
	switch format {
	case FormatJSON, "":
		return JSONEncoder{}, nil
	case FormatText:
		return TextEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}

const jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// WireRecord is the JSON shape sent to subscribers.
type WireRecord struct {
	ID          int64   `json:"id"`
	CreatedAt   string  `json:"createdAt"`
	Location    string  `json:"location"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Category    int     `json:"category"`
	Subcategory string  `json:"subcategory"`
}

func ToWire(r domain.TrafficRecord) WireRecord {
	return WireRecord{
		ID:          r.ID,
		CreatedAt:   r.CreatedAt.In(feed.Location()).Format(jsonTimeLayout),
		Location:    r.Location,
		Title:       r.Title,
		Description: r.Description,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		Category:    int(r.Category),
		Subcategory: r.Subcategory,
	}
}

func (w WireRecord) Record() (domain.TrafficRecord, error) {
	createdAt, err := time.Parse(jsonTimeLayout, w.CreatedAt)
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse createdAt: %w", err)
	}
	return domain.TrafficRecord{
		ID:          w.ID,
		CreatedAt:   createdAt.In(feed.Location()),
		Location:    w.Location,
		Description: w.Description,
		Title:       w.Title,
		Latitude:    w.Latitude,
		Longitude:   w.Longitude,
		Category:    domain.Category(w.Category),
		Subcategory: w.Subcategory,
	}, nil
}

type JSONEncoder struct{}

func (JSONEncoder) Encode(r domain.TrafficRecord) ([]byte, error) {
	data, err := json.Marshal(ToWire(r))
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", r.ID, err)
	}
	return data, nil
}

// ParseJSON is the inverse of JSONEncoder.Encode.
func ParseJSON(data []byte) (domain.TrafficRecord, error) {
	var w WireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return w.Record()
}

var textKeys = []string{
	"id", "Created Date", "Exact location", "Title", "Description",
	"Latitude", "Longitude", "category", "subcategory",
}

// TextEncoder renders one "key: value" line per field.
type TextEncoder struct{}

func (TextEncoder) Encode(r domain.TrafficRecord) ([]byte, error) {
	values := []string{
		strconv.FormatInt(r.ID, 10),
		feed.FormatTimestamp(r.CreatedAt),
		r.Location,
		r.Title,
		r.Description,
		strconv.FormatFloat(r.Latitude, 'f', -1, 64),
		strconv.FormatFloat(r.Longitude, 'f', -1, 64),
		strconv.Itoa(int(r.Category)),
		r.Subcategory,
	}

	var b strings.Builder
	for i, key := range textKeys {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(values[i])
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

// ParseText is the inverse of TextEncoder.Encode. Values may span lines as long as no
// continuation line starts with the next field's key.
func ParseText(data []byte) (domain.TrafficRecord, error) {
	rest := strings.TrimSuffix(string(data), "\n")
	values := make([]string, len(textKeys))

	for i, key := range textKeys {
		prefix := key + ": "
		if !strings.HasPrefix(rest, prefix) {
			return domain.TrafficRecord{}, fmt.Errorf("expected %q field", key)
		}
		rest = rest[len(prefix):]

		if i == len(textKeys)-1 {
			values[i] = rest
			break
		}
		end := strings.Index(rest, "\n"+textKeys[i+1]+": ")
		if end < 0 {
			return domain.TrafficRecord{}, fmt.Errorf("missing %q field", textKeys[i+1])
		}
		values[i], rest = rest[:end], rest[end+1:]
	}

	id, err := strconv.ParseInt(values[0], 10, 64)
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse id: %w", err)
	}
	// Parse accepts the fractional seconds even though the layout omits them.
	createdAt, err := time.ParseInLocation("2006-01-02 15:04:05 MST", values[1], feed.Location())
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse created date: %w", err)
	}
	lat, err := strconv.ParseFloat(values[5], 64)
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(values[6], 64)
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse longitude: %w", err)
	}
	category, err := strconv.Atoi(values[7])
	if err != nil {
		return domain.TrafficRecord{}, fmt.Errorf("parse category: %w", err)
	}

	return domain.TrafficRecord{
		ID:          id,
		CreatedAt:   createdAt,
		Location:    values[2],
		Title:       values[3],
		Description: values[4],
		Latitude:    lat,
		Longitude:   lon,
		Category:    domain.Category(category),
		Subcategory: values[8],
	}, nil
}
