package domain

import "time"

// Position is a WGS-84 latitude/longitude coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TrackPoint is a single published position/radius/time record for a storm.
// Points come from KMA typhoon bulletins, so consecutive points are typically
// three to six hours apart.
type TrackPoint struct {
	ValidTime time.Time `json:"valid_time"`
	Position  Position  `json:"position"`

	// InfluenceRadiusKm is the outer band (15 m/s wind radius) within which
	// the storm materially affects a location. StrongRadiusKm is the inner
	// 25 m/s band; zero when the bulletin did not publish one.
	InfluenceRadiusKm float64 `json:"influence_radius_km"`
	StrongRadiusKm    float64 `json:"strong_radius_km,omitempty"`

	IntensityClass     string  `json:"intensity_class,omitempty"` // e.g. "TY", "STS"
	CentralPressureHPa float64 `json:"central_pressure_hpa,omitempty"`
	MaxWindMS          float64 `json:"max_wind_ms,omitempty"`
	LocationText       string  `json:"location_text,omitempty"` // bulletin prose, e.g. "서귀포 남남서쪽 약 340 km 해상"

	// IssuedAt is the issuance time of the bulletin this point came from.
	// Used for dedup (latest issuance wins) and confidence, not for windowing.
	IssuedAt time.Time `json:"issued_at"`
}

// StormRecord is an immutable snapshot of one storm's published track.
// A newer bulletin yields a fresh StormRecord, never an in-place edit.
type StormRecord struct {
	Seq    int          `json:"seq"` // KMA typhoon sequence number (typSeq)
	Name   string       `json:"name"`
	NameEN string       `json:"name_en,omitempty"`
	Year   int          `json:"year"`
	Points []TrackPoint `json:"points"`

	// IssuedAt is the issuance time of the most recent bulletin in Points.
	IssuedAt time.Time `json:"issued_at"`
}

// CatalogEntry is the lightweight storm identity used by search and listings.
type CatalogEntry struct {
	Seq           int       `json:"seq"`
	Name          string    `json:"name"`
	NameEN        string    `json:"name_en,omitempty"`
	Year          int       `json:"year"`
	FirstBulletin time.Time `json:"first_bulletin,omitempty"`
	LastBulletin  time.Time `json:"last_bulletin,omitempty"`
}

// Location is a query input: a position plus an optional human label.
type Location struct {
	Position Position `json:"position"`
	Label    string   `json:"label,omitempty"`
}

// Confidence tags how tightly an impact window can be trusted, derived from
// the issuance cadence of the bulletins feeding the track.
type Confidence string

const (
	ConfidenceFine   Confidence = "fine"
	ConfidenceCoarse Confidence = "coarse"
)

// ClosestApproach records when and how near the interpolated storm centre
// came to the query location, and the track segment it was derived from.
type ClosestApproach struct {
	Time         time.Time `json:"time"`
	DistanceKm   float64   `json:"distance_km"`
	SegmentStart time.Time `json:"segment_start"`
	SegmentEnd   time.Time `json:"segment_end"`
}

// ImpactWindow is a time interval during which a location lies inside the
// storm's interpolated influence circle. Start equals End when the track only
// grazes the circle at a single instant.
type ImpactWindow struct {
	Start      time.Time       `json:"start"`
	End        time.Time       `json:"end"`
	Confidence Confidence      `json:"confidence"`
	Closest    ClosestApproach `json:"closest_approach"`
}

// Duration returns the window length. Zero for a degenerate window.
func (w ImpactWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// SearchCandidate is one ranked result of a catalog search.
type SearchCandidate struct {
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	NameEN string `json:"name_en,omitempty"`
	Year   int    `json:"year"`
	Score  int    `json:"match_score"`
}

// ImpactAlert is published when a live summary finds an impact window for a
// user location.
type ImpactAlert struct {
	ID            string       `json:"id"`
	StormSeq      int          `json:"storm_seq"`
	StormName     string       `json:"storm_name"`
	LocationLabel string       `json:"location_label"`
	Window        ImpactWindow `json:"window"`
	IssuedAt      time.Time    `json:"issued_at"`
}
