package domain

import "time"

// WindowConfig tunes the impact window engine. Zero values fall back to the
// defaults from DefaultWindowConfig.
type WindowConfig struct {
	// SamplesPerSegment is how many sub-times f(t) is evaluated at between
	// consecutive track points.
	SamplesPerSegment int

	// Epsilon bounds bisection refinement of window edges.
	Epsilon time.Duration

	// CoarseBulletinGap is the issuance spacing above which a window is
	// tagged coarse instead of fine.
	CoarseBulletinGap time.Duration
}

// DefaultWindowConfig returns the tuning used in production.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		SamplesPerSegment: 64,
		Epsilon:           30 * time.Second,
		CoarseBulletinGap: 6 * time.Hour,
	}
}

// WindowEngine computes the time windows during which a location sits inside
// a storm's interpolated influence circle. Pure and safe for concurrent use.
type WindowEngine struct {
	cfg WindowConfig
}

// NewWindowEngine creates an engine, filling unset config fields with defaults.
func NewWindowEngine(cfg WindowConfig) *WindowEngine {
	def := DefaultWindowConfig()
	if cfg.SamplesPerSegment <= 0 {
		cfg.SamplesPerSegment = def.SamplesPerSegment
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.CoarseBulletinGap <= 0 {
		cfg.CoarseBulletinGap = def.CoarseBulletinGap
	}
	return &WindowEngine{cfg: cfg}
}

// span is an in-progress window before confidence tagging.
type span struct {
	start, end time.Time
	closest    ClosestApproach
}

// ComputeWindows returns every disjoint impact window for the track and
// location, ordered by start time. The track must be normalized (sorted,
// deduplicated valid times); TrackStore guarantees this. A location exactly
// on the influence boundary counts as inside. Returns nil when the location
// is never in range.
func (e *WindowEngine) ComputeWindows(track []TrackPoint, loc Position) []ImpactWindow {
	if len(track) == 0 {
		return nil
	}

	conf := e.confidence(track)

	if len(track) == 1 {
		p := track[0]
		d := DistanceKm(p.Position, loc)
		if d-p.InfluenceRadiusKm > 0 {
			return nil
		}
		return []ImpactWindow{{
			Start:      p.ValidTime,
			End:        p.ValidTime,
			Confidence: conf,
			Closest: ClosestApproach{
				Time:         p.ValidTime,
				DistanceKm:   d,
				SegmentStart: p.ValidTime,
				SegmentEnd:   p.ValidTime,
			},
		}}
	}

	var spans []span
	for i := 0; i < len(track)-1; i++ {
		for _, sp := range e.segmentSpans(track[i], track[i+1], loc) {
			// f(t) is continuous across segment boundaries, so a span that
			// begins where the previous one ended is the same window.
			if n := len(spans); n > 0 && !sp.start.After(spans[n-1].end.Add(e.cfg.Epsilon)) {
				prev := &spans[n-1]
				prev.end = sp.end
				if sp.closest.DistanceKm < prev.closest.DistanceKm {
					prev.closest = sp.closest
				}
				continue
			}
			spans = append(spans, sp)
		}
	}

	if len(spans) == 0 {
		return nil
	}
	windows := make([]ImpactWindow, len(spans))
	for i, sp := range spans {
		windows[i] = ImpactWindow{Start: sp.start, End: sp.end, Confidence: conf, Closest: sp.closest}
	}
	return windows
}

// ComputeWindow returns the window whose closest approach is earliest, or nil
// when the location never comes in range. Looping tracks can produce several
// disjoint windows; callers wanting all of them use ComputeWindows.
func (e *WindowEngine) ComputeWindow(track []TrackPoint, loc Position) *ImpactWindow {
	windows := e.ComputeWindows(track, loc)
	if len(windows) == 0 {
		return nil
	}
	best := windows[0]
	for _, w := range windows[1:] {
		if w.Closest.Time.Before(best.Closest.Time) {
			best = w
		}
	}
	return &best
}

// segmentSpans finds the sub-intervals of [p0.ValidTime, p1.ValidTime] where
// the location is inside the interpolated influence circle, by sampling
// f(t) = distance(t) - radius(t) and bisecting the sign changes.
func (e *WindowEngine) segmentSpans(p0, p1 TrackPoint, loc Position) []span {
	t0, t1 := p0.ValidTime, p1.ValidTime
	dur := t1.Sub(t0)
	if dur <= 0 {
		return nil
	}

	eval := func(tt time.Time) (distKm, f float64) {
		frac := float64(tt.Sub(t0)) / float64(dur)
		pos := InterpolatePosition(p0.Position, p1.Position, frac)
		r := InterpolateRadius(p0.InfluenceRadiusKm, p1.InfluenceRadiusKm, frac)
		d := DistanceKm(pos, loc)
		return d, d - r
	}

	n := e.cfg.SamplesPerSegment
	var spans []span
	var cur *span

	prevT := t0
	dist, f := eval(t0)
	if f <= 0 {
		cur = &span{
			start:   t0,
			closest: ClosestApproach{Time: t0, DistanceKm: dist, SegmentStart: t0, SegmentEnd: t1},
		}
	}
	prevF := f

	for k := 1; k <= n; k++ {
		tt := t0.Add(time.Duration(float64(dur) * float64(k) / float64(n)))
		dist, f = eval(tt)

		switch {
		case prevF > 0 && f <= 0:
			entry := e.bisectEntry(prevT, tt, eval)
			entryDist, _ := eval(entry)
			cur = &span{
				start:   entry,
				closest: ClosestApproach{Time: entry, DistanceKm: entryDist, SegmentStart: t0, SegmentEnd: t1},
			}
			if dist < cur.closest.DistanceKm {
				cur.closest.Time = tt
				cur.closest.DistanceKm = dist
			}
		case prevF <= 0 && f > 0:
			cur.end = e.bisectExit(prevT, tt, eval)
			spans = append(spans, *cur)
			cur = nil
		case f <= 0:
			if dist < cur.closest.DistanceKm {
				cur.closest.Time = tt
				cur.closest.DistanceKm = dist
			}
		}

		prevT, prevF = tt, f
	}

	if cur != nil {
		cur.end = t1
		spans = append(spans, *cur)
	}
	return spans
}

// bisectEntry refines a crossing with f(lo) > 0 and f(hi) <= 0, returning the
// earliest known inside time within Epsilon.
func (e *WindowEngine) bisectEntry(lo, hi time.Time, eval func(time.Time) (float64, float64)) time.Time {
	for hi.Sub(lo) > e.cfg.Epsilon {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, f := eval(mid); f <= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi
}

// bisectExit refines a crossing with f(lo) <= 0 and f(hi) > 0, returning the
// latest known inside time within Epsilon.
func (e *WindowEngine) bisectExit(lo, hi time.Time, eval func(time.Time) (float64, float64)) time.Time {
	for hi.Sub(lo) > e.cfg.Epsilon {
		mid := lo.Add(hi.Sub(lo) / 2)
		if _, f := eval(mid); f <= 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// confidence derives the window confidence from bulletin issuance spacing.
// Points lacking an issuance time fall back to their valid times.
func (e *WindowEngine) confidence(track []TrackPoint) Confidence {
	for i := 1; i < len(track); i++ {
		ta, tb := track[i-1].IssuedAt, track[i].IssuedAt
		if ta.IsZero() || tb.IsZero() {
			ta, tb = track[i-1].ValidTime, track[i].ValidTime
		}
		if tb.Sub(ta) > e.cfg.CoarseBulletinGap {
			return ConfidenceCoarse
		}
	}
	return ConfidenceFine
}

// StrongBandTrack returns a copy of the track windowed on the inner 25 m/s
// band instead of the outer influence radius, or nil when any point lacks a
// published inner band.
func StrongBandTrack(track []TrackPoint) []TrackPoint {
	out := make([]TrackPoint, len(track))
	for i, p := range track {
		if p.StrongRadiusKm <= 0 {
			return nil
		}
		p.InfluenceRadiusKm = p.StrongRadiusKm
		out[i] = p
	}
	return out
}
