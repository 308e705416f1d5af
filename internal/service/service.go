// Package service implements the tool operations exposed by the typhoon
// info service: live impact summaries, historical search, and past track
// retrieval. It composes the fetch coordinator, the region gazetteer, and
// the impact window engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
	"github.com/couchcryptid/typhoon-info-service/internal/observability"
)

// Bulletin times from the upstream are Korea Standard Time, so tool date
// arithmetic happens in KST as well.
var kst = time.FixedZone("KST", 9*60*60)

const (
	liveSearchBackDays    = 3
	liveSearchForwardDays = 1
	liveTrackBackDays     = 7
	liveTrackForwardDays  = 2

	pastDefaultLookbackDays = 30
	fallbackSeasons         = 9
	searchSeasons           = 10
	maxSearchResults        = 20

	msgNoActiveTyphoon = "현재 활동 중인 태풍이 없습니다."
	msgNoTrackData     = "태풍 경로 자료를 아직 받지 못했습니다."
	msgDisclaimer      = "본 정보는 기상청 태풍정보를 가공한 참고용 자료입니다. 공식 특보는 기상청 발표를 확인하세요."
)

// Fetcher is the cached upstream access the service depends on. The bool
// result of each call marks a stale cached value served after a fetch
// failure.
type Fetcher interface {
	LiveStorms(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, bool, error)
	SeasonCatalog(ctx context.Context, year int) ([]domain.CatalogEntry, bool, error)
	TrackPoints(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, bool, error)
}

// Geocoder resolves free-form Korean location text to coordinates.
type Geocoder interface {
	Geocode(text string) (domain.Position, bool)
}

// AlertPublisher emits impact alerts to downstream consumers. Optional.
type AlertPublisher interface {
	PublishImpactAlert(ctx context.Context, alert domain.ImpactAlert) error
}

// Service implements the tool operations. Construct with NewService.
type Service struct {
	fetcher   Fetcher
	geocoder  Geocoder
	engine    *domain.WindowEngine
	publisher AlertPublisher
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewService wires the tool layer. publisher may be nil when alert
// publishing is disabled.
func NewService(fetcher Fetcher, geocoder Geocoder, engine *domain.WindowEngine, publisher AlertPublisher, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		fetcher:   fetcher,
		geocoder:  geocoder,
		engine:    engine,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// StormInfo identifies a storm in tool responses.
type StormInfo struct {
	Seq    int    `json:"seq"`
	Name   string `json:"name"`
	NameEN string `json:"nameEn,omitempty"`
	Year   int    `json:"year"`
}

// LocationInfo echoes the resolved query location.
type LocationInfo struct {
	Label    string          `json:"label"`
	Position domain.Position `json:"position"`
}

// LiveSummary is the getLiveSummary response.
type LiveSummary struct {
	HasActiveTyphoon bool                  `json:"hasActiveTyphoon"`
	Storm            *StormInfo            `json:"storm,omitempty"`
	Latest           *domain.TrackPoint    `json:"latest,omitempty"`
	Location         *LocationInfo         `json:"location,omitempty"`
	InfluenceWindows []domain.ImpactWindow `json:"influenceWindows,omitempty"`
	StrongWindows    []domain.ImpactWindow `json:"strongWindows,omitempty"`
	Message          string                `json:"message,omitempty"`
	Disclaimer       string                `json:"disclaimer"`
	Stale            bool                  `json:"-"`
}

// SearchResult is the searchPastTyphoons response.
type SearchResult struct {
	Candidates []domain.SearchCandidate `json:"candidates"`
	Stale      bool                     `json:"-"`
}

// TrackResult is the getPastTyphoonTrack response.
type TrackResult struct {
	Seq    int                 `json:"seq"`
	From   time.Time           `json:"from"`
	To     time.Time           `json:"to"`
	Points []domain.TrackPoint `json:"points"`
	Stale  bool                `json:"-"`
}

// GetLiveSummary reports whether a typhoon is active and, for the given
// location, when its influence and strong wind bands arrive and leave.
func (s *Service) GetLiveSummary(ctx context.Context, location string) (*LiveSummary, error) {
	sum, err := s.liveSummary(ctx, location)
	s.metrics.ToolRequests.WithLabelValues("get_live_summary", outcomeFor(err)).Inc()
	return sum, err
}

func (s *Service) liveSummary(ctx context.Context, location string) (*LiveSummary, error) {
	// Location is optional: without one the summary reports storm status
	// but no impact windows.
	location = strings.TrimSpace(location)
	var (
		pos     domain.Position
		located bool
	)
	if location != "" {
		pos, located = s.geocoder.Geocode(location)
		if !located {
			return nil, &domain.ValidationError{Field: "location", Reason: "unknown region: " + location}
		}
	}

	now := s.clock.Now().In(kst)
	entries, staleList, err := s.fetcher.LiveStorms(ctx,
		now.AddDate(0, 0, -liveSearchBackDays),
		now.AddDate(0, 0, liveSearchForwardDays),
	)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &LiveSummary{
			Message:    msgNoActiveTyphoon,
			Disclaimer: msgDisclaimer,
			Stale:      staleList,
		}, nil
	}

	// Entries arrive newest bulletin first.
	storm := entries[0]
	points, staleTrack, err := s.fetcher.TrackPoints(ctx, storm.Seq,
		now.AddDate(0, 0, -liveTrackBackDays),
		now.AddDate(0, 0, liveTrackForwardDays),
	)
	if err != nil {
		return nil, err
	}

	sum := &LiveSummary{
		HasActiveTyphoon: true,
		Storm:            &StormInfo{Seq: storm.Seq, Name: storm.Name, NameEN: storm.NameEN, Year: storm.Year},
		Disclaimer:       msgDisclaimer,
		Stale:            staleList || staleTrack,
	}
	if located {
		sum.Location = &LocationInfo{Label: location, Position: pos}
	}
	if len(points) == 0 {
		sum.Message = msgNoTrackData
		return sum, nil
	}

	store := domain.NewTrackStore(storm.Seq, points)
	track, err := store.Points()
	if err != nil {
		return nil, err
	}
	latest, err := store.LatestPoint()
	if err != nil {
		return nil, err
	}
	sum.Latest = &latest
	if located {
		sum.InfluenceWindows = s.engine.ComputeWindows(track, pos)
		if strong := domain.StrongBandTrack(track); strong != nil {
			sum.StrongWindows = s.engine.ComputeWindows(strong, pos)
		}
		if len(sum.InfluenceWindows) > 0 {
			s.publishAlert(ctx, storm, location, sum.InfluenceWindows)
		}
	}
	return sum, nil
}

// publishAlert is best effort: a broker outage must not fail the summary.
func (s *Service) publishAlert(ctx context.Context, storm domain.CatalogEntry, location string, windows []domain.ImpactWindow) {
	if s.publisher == nil || len(windows) == 0 {
		return
	}
	// Alert on the window with the earliest closest approach, matching
	// WindowEngine.ComputeWindow.
	win := windows[0]
	for _, w := range windows[1:] {
		if w.Closest.Time.Before(win.Closest.Time) {
			win = w
		}
	}
	alert := domain.ImpactAlert{
		ID:            uuid.NewString(),
		StormSeq:      storm.Seq,
		StormName:     storm.Name,
		LocationLabel: location,
		Window:        win,
		IssuedAt:      s.clock.Now(),
	}
	if err := s.publisher.PublishImpactAlert(ctx, alert); err != nil {
		s.logger.Warn("impact alert publish failed", "storm_seq", storm.Seq, "error", err)
		return
	}
	s.metrics.AlertsSent.Inc()
}

// SearchPastTyphoons finds historical storms by name, scanning recent
// seasons newest first when no year is given.
func (s *Service) SearchPastTyphoons(ctx context.Context, query string, year *int) (*SearchResult, error) {
	res, err := s.searchPastTyphoons(ctx, query, year)
	s.metrics.ToolRequests.WithLabelValues("search_past_typhoons", outcomeFor(err)).Inc()
	return res, err
}

func (s *Service) searchPastTyphoons(ctx context.Context, query string, year *int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" && year == nil {
		return nil, &domain.ValidationError{Field: "query", Reason: "query or year required"}
	}
	if year != nil && *year < 1 {
		return nil, &domain.ValidationError{Field: "year", Reason: "must be a calendar year"}
	}

	var (
		candidates []domain.SearchCandidate
		stale      bool
	)
	if year != nil {
		catalog, st, err := s.fetcher.SeasonCatalog(ctx, *year)
		if err != nil {
			return nil, err
		}
		stale = st
		candidates = domain.Search(query, year, catalog)
	} else {
		// Scan recent seasons newest first and stop at the first season
		// with hits.
		current := s.clock.Now().In(kst).Year()
		for i := 0; i < searchSeasons; i++ {
			catalog, st, err := s.fetcher.SeasonCatalog(ctx, current-i)
			if err != nil {
				return nil, err
			}
			stale = stale || st
			candidates = domain.Search(query, nil, catalog)
			if len(candidates) > 0 {
				break
			}
		}
	}

	if len(candidates) > maxSearchResults {
		candidates = candidates[:maxSearchResults]
	}
	return &SearchResult{Candidates: candidates, Stale: stale}, nil
}

// GetPastTyphoonTrack returns the normalized bulletin track of one storm.
// With no explicit range it looks back 30 days and then falls back to
// scanning recent seasons for the storm.
func (s *Service) GetPastTyphoonTrack(ctx context.Context, stormID int, from, to *time.Time) (*TrackResult, error) {
	res, err := s.pastTyphoonTrack(ctx, stormID, from, to)
	s.metrics.ToolRequests.WithLabelValues("get_past_typhoon_track", outcomeFor(err)).Inc()
	return res, err
}

func (s *Service) pastTyphoonTrack(ctx context.Context, stormID int, from, to *time.Time) (*TrackResult, error) {
	if stormID < 1 {
		return nil, &domain.ValidationError{Field: "stormId", Reason: "must be a positive storm sequence"}
	}

	now := s.clock.Now().In(kst)
	end := now
	if to != nil {
		end = *to
	}
	start := end.AddDate(0, 0, -pastDefaultLookbackDays)
	if from != nil {
		start = *from
	}
	if start.After(end) {
		return nil, &domain.ValidationError{Field: "from", Reason: "must not be after to"}
	}

	points, stale, err := s.fetcher.TrackPoints(ctx, stormID, start, end)
	if err != nil {
		return nil, err
	}

	// The default window misses storms from earlier in the year or from
	// past seasons; scan season by season before giving up, but only when
	// the caller did not pin the range.
	if len(points) == 0 && from == nil && to == nil {
		points, stale, err = s.seasonScan(ctx, stormID, now.Year())
		if err != nil {
			return nil, err
		}
	}
	if len(points) == 0 {
		return nil, &domain.NotFoundError{Resource: fmt.Sprintf("typhoon %d", stormID)}
	}

	store := domain.NewTrackStore(stormID, points)
	normalized, err := store.Points()
	if err != nil {
		return nil, err
	}
	return &TrackResult{
		Seq:    stormID,
		From:   normalized[0].ValidTime,
		To:     normalized[len(normalized)-1].ValidTime,
		Points: normalized,
		Stale:  stale,
	}, nil
}

func (s *Service) seasonScan(ctx context.Context, stormID, currentYear int) ([]domain.TrackPoint, bool, error) {
	for i := 0; i < fallbackSeasons; i++ {
		year := currentYear - i
		from := time.Date(year, 1, 1, 0, 0, 0, 0, kst)
		to := time.Date(year, 12, 31, 0, 0, 0, 0, kst)
		points, stale, err := s.fetcher.TrackPoints(ctx, stormID, from, to)
		if err != nil {
			return nil, false, err
		}
		if len(points) > 0 {
			return points, stale, nil
		}
	}
	return nil, false, nil
}

func outcomeFor(err error) string {
	var (
		validation  *domain.ValidationError
		notFound    *domain.NotFoundError
		unavailable *domain.UpstreamUnavailableError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &validation):
		return "invalid"
	case errors.As(err, &notFound):
		return "not_found"
	case errors.As(err, &unavailable):
		return "unavailable"
	default:
		return "error"
	}
}
