package domain

import (
	"fmt"
	"sort"
	"time"
)

// TrackStore holds the normalized track of one storm: points sorted by valid
// time, with duplicate timestamps collapsed to the most recently issued
// bulletin. The store is immutable after construction.
type TrackStore struct {
	seq    int
	points []TrackPoint
}

// NewTrackStore normalizes raw points for one storm. The input slice is not
// retained or mutated.
func NewTrackStore(seq int, points []TrackPoint) *TrackStore {
	normalized := make([]TrackPoint, len(points))
	copy(normalized, points)

	sort.SliceStable(normalized, func(i, j int) bool {
		return normalized[i].ValidTime.Before(normalized[j].ValidTime)
	})

	// Duplicate valid times are illegal in a track; keep the latest issuance.
	deduped := normalized[:0]
	for _, p := range normalized {
		if n := len(deduped); n > 0 && deduped[n-1].ValidTime.Equal(p.ValidTime) {
			if !p.IssuedAt.Before(deduped[n-1].IssuedAt) {
				deduped[n-1] = p
			}
			continue
		}
		deduped = append(deduped, p)
	}

	return &TrackStore{seq: seq, points: deduped}
}

// Seq returns the storm sequence number this track belongs to.
func (s *TrackStore) Seq() int { return s.seq }

// Points returns the full normalized track.
func (s *TrackStore) Points() ([]TrackPoint, error) {
	return s.PointsInRange(nil, nil)
}

// PointsInRange returns the ordered sub-sequence whose valid times fall
// inside [from, to], bounds inclusive. A nil bound is open-ended. Returns
// NotFoundError when the storm has no published points at all.
func (s *TrackStore) PointsInRange(from, to *time.Time) ([]TrackPoint, error) {
	if len(s.points) == 0 {
		return nil, &NotFoundError{Resource: fmt.Sprintf("typhoon %d", s.seq)}
	}

	out := make([]TrackPoint, 0, len(s.points))
	for _, p := range s.points {
		if from != nil && p.ValidTime.Before(*from) {
			continue
		}
		if to != nil && p.ValidTime.After(*to) {
			break
		}
		out = append(out, p)
	}
	return out, nil
}

// LatestPoint returns the most recent track point.
func (s *TrackStore) LatestPoint() (TrackPoint, error) {
	if len(s.points) == 0 {
		return TrackPoint{}, &NotFoundError{Resource: fmt.Sprintf("typhoon %d", s.seq)}
	}
	return s.points[len(s.points)-1], nil
}
