// Package geo resolves Korean region names to approximate centre
// coordinates using an embedded gazetteer.
package geo

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
)

//go:embed regions.yaml
var regionsYAML []byte

type regionFile struct {
	Regions []regionEntry `yaml:"regions"`
}

type regionEntry struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// Gazetteer maps free-form Korean region text to centroid positions.
type Gazetteer struct {
	regions []regionEntry
}

// NewGazetteer parses the embedded region table.
func NewGazetteer() (*Gazetteer, error) {
	var f regionFile
	if err := yaml.Unmarshal(regionsYAML, &f); err != nil {
		return nil, fmt.Errorf("parse embedded region table: %w", err)
	}
	if len(f.Regions) == 0 {
		return nil, fmt.Errorf("embedded region table is empty")
	}
	return &Gazetteer{regions: f.Regions}, nil
}

// Geocode resolves region text like "부산광역시" or "제주" to a position.
// Raw substring matching is tried first, then suffix-normalized equality.
// Returns false when the text names no known region.
func (g *Gazetteer) Geocode(text string) (domain.Position, bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return domain.Position{}, false
	}

	for _, r := range g.regions {
		if strings.Contains(raw, r.Name) {
			return domain.Position{Lat: r.Lat, Lon: r.Lon}, true
		}
	}

	n := normalizeRegion(raw)
	for _, r := range g.regions {
		if normalizeRegion(r.Name) == n {
			return domain.Position{Lat: r.Lat, Lon: r.Lon}, true
		}
	}
	return domain.Position{}, false
}

// normalizeRegion strips the common administrative suffixes so that
// "제주특별자치도" and "제주" compare equal.
func normalizeRegion(s string) string {
	t := strings.TrimSpace(s)
	for _, suffix := range []string{"특별자치도", "광역시", "특별시", "도", "시"} {
		t = strings.ReplaceAll(t, suffix, "")
	}
	return t
}
