package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pscheid92/trafficpulse/internal/domain"
	"github.com/pscheid92/trafficpulse/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T) domain.TrafficRecord {
	t.Helper()
	createdAt, err := feed.ParseTimestamp("/Date(1682481845657+0200)/")
	require.NoError(t, err)
	return domain.TrafficRecord{
		ID:          4148791,
		CreatedAt:   createdAt,
		Location:    "Mellan Trafikplats Lugnet och Trafikplats Skurubron",
		Description: "Olycka med flera fordon.",
		Title:       "Väg 222 Värmdöleden",
		Latitude:    59.31318,
		Longitude:   18.213457,
		Category:    domain.CategoryRoadTraffic,
		Subcategory: "Olycka",
	}
}

func assertSameRecord(t *testing.T, want, got domain.TrafficRecord) {
	t.Helper()
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt: want %v, got %v", want.CreatedAt, got.CreatedAt)
	want.CreatedAt, got.CreatedAt = time.Time{}, time.Time{}
	assert.Equal(t, want, got)
}

func TestTextEncoder_Format(t *testing.T) {
	data, err := TextEncoder{}.Encode(sampleRecord(t))
	require.NoError(t, err)

	want := "id: 4148791\n" +
		"Created Date: 2023-04-26 06:04:05.657 CEST\n" +
		"Exact location: Mellan Trafikplats Lugnet och Trafikplats Skurubron\n" +
		"Title: Väg 222 Värmdöleden\n" +
		"Description: Olycka med flera fordon.\n" +
		"Latitude: 59.31318\n" +
		"Longitude: 18.213457\n" +
		"category: 0\n" +
		"subcategory: Olycka\n"
	assert.Equal(t, want, string(data))
}

func TestTextEncoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.TrafficRecord)
	}{
		{"sample", func(*domain.TrafficRecord) {}},
		{"multiline description", func(r *domain.TrafficRecord) { r.Description = "Line one.\nLine two." }},
		{"empty fields", func(r *domain.TrafficRecord) { r.Title, r.Subcategory, r.Location = "", "", "" }},
		{"negative coordinates", func(r *domain.TrafficRecord) { r.Latitude, r.Longitude = -33.5, -70.25 }},
		{"whole second", func(r *domain.TrafficRecord) { r.CreatedAt = r.CreatedAt.Truncate(time.Second) }},
		{"winter time", func(r *domain.TrafficRecord) { r.CreatedAt = time.Date(2023, 1, 15, 12, 0, 0, 0, time.UTC) }},
		{"unknown category", func(r *domain.TrafficRecord) { r.Category = domain.Category(9) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := sampleRecord(t)
			tt.mutate(&want)

			data, err := TextEncoder{}.Encode(want)
			require.NoError(t, err)
			got, err := ParseText(data)
			require.NoError(t, err)

			assertSameRecord(t, want, got)
		})
	}
}

func TestParseText_Rejects(t *testing.T) {
	_, err := ParseText([]byte("hello"))
	assert.Error(t, err)

	_, err = ParseText([]byte("id: x\nCreated Date: 2023-04-26 06:04:05.657 CEST\nExact location: \nTitle: \nDescription: \nLatitude: 1\nLongitude: 2\ncategory: 0\nsubcategory: \n"))
	assert.Error(t, err)
}

func TestJSONEncoder_Fields(t *testing.T) {
	data, err := JSONEncoder{}.Encode(sampleRecord(t))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))

	assert.Equal(t, float64(4148791), fields["id"])
	assert.Equal(t, "2023-04-26T06:04:05.657+02:00", fields["createdAt"])
	assert.Equal(t, "Mellan Trafikplats Lugnet och Trafikplats Skurubron", fields["location"])
	assert.Equal(t, "Väg 222 Värmdöleden", fields["title"])
	assert.Equal(t, "Olycka med flera fordon.", fields["description"])
	assert.Equal(t, 59.31318, fields["latitude"])
	assert.Equal(t, 18.213457, fields["longitude"])
	assert.Equal(t, float64(0), fields["category"])
	assert.Equal(t, "Olycka", fields["subcategory"])
}

func TestJSONEncoder_RoundTrip(t *testing.T) {
	want := sampleRecord(t)
	want.Category = domain.CategoryPlannedDisruption

	data, err := JSONEncoder{}.Encode(want)
	require.NoError(t, err)
	got, err := ParseJSON(data)
	require.NoError(t, err)

	assertSameRecord(t, want, got)
}

func TestNewEncoder(t *testing.T) {
	enc, err := NewEncoder(FormatText)
	require.NoError(t, err)
	assert.IsType(t, TextEncoder{}, enc)

	enc, err = NewEncoder(FormatJSON)
	require.NoError(t, err)
	assert.IsType(t, JSONEncoder{}, enc)

	_, err = NewEncoder("xml")
	assert.Error(t, err)
	assert.False(t, WireFormat("xml").Valid())
}
