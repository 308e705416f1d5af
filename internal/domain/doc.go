// Package domain models Korea Meteorological Administration (KMA) typhoon
// bulletin data and implements the pure core of the service: great-circle
// geometry, track normalization, impact window estimation, and catalog
// search.
//
// # Data Source
//
// Track points originate from the data.go.kr TyphoonInfoService, which
// republishes KMA typhoon bulletins. Each bulletin carries the storm's
// analyzed or forecast centre (typLat/typLon), a valid time (typTm, KST
// "YYYYMMDDHHMM"), the 15 m/s and 25 m/s wind radii when published, central
// pressure, maximum wind, and a prose location. The issuance time (tmFc) is
// distinct from the valid time: one bulletin can publish several forecast
// points, and successive bulletins revise earlier forecast points for the
// same valid time.
//
// # Normalization
//
// A storm's usable track is the bulletin points sorted by valid time with
// duplicate valid times collapsed to the latest issuance, since the newer
// bulletin supersedes the older forecast. See [NewTrackStore].
//
// # Impact Windows
//
// A single arrival instant is deliberately never produced. Bulletin points
// are hours apart, so the storm's position and influence radius are treated
// as linearly interpolated over each segment, and the reported result is the
// interval where
//
//	f(t) = distance(centre(t), location) - radius(t) <= 0
//
// f is neither monotonic nor unimodal over a whole track (storms stall and
// loop), so the engine samples f within each segment and refines the sign
// changes by bisection, then merges sub-intervals across segment boundaries.
// A location exactly on the circle counts as inside. See [WindowEngine].
//
// # Confidence
//
// Windows interpolated across sparsely issued bulletins are tagged
// [ConfidenceCoarse]; a cadence at or under the configured gap (6 h by
// default, matching the usual KMA bulletin rhythm) yields [ConfidenceFine].
package domain
