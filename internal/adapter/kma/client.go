// Package kma fetches typhoon bulletin data from the data.go.kr
// TyphoonInfoService, which republishes Korea Meteorological Administration
// typhoon bulletins.
package kma

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/couchcryptid/typhoon-info-service/internal/domain"
)

const (
	numOfRows = 100
	maxPages  = 20

	// data.go.kr result codes.
	resultNormal = "00"
	resultNoData = "03"
)

// kst is the bulletin timezone. A fixed offset avoids a tzdata dependency;
// Korea has not observed DST since 1988.
var kst = time.FixedZone("KST", 9*60*60)

// Client talks to the TyphoonInfoService getTyphoonInfo operation.
type Client struct {
	serviceKey string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an upstream bulletin client.
func NewClient(serviceKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		logger:     logger,
	}
}

// ListStorms returns one catalog entry per distinct storm whose bulletins
// fall inside [from, to], most recently active first.
func (c *Client) ListStorms(ctx context.Context, from, to time.Time) ([]domain.CatalogEntry, error) {
	seen := make(map[int]*domain.CatalogEntry)

	err := c.eachItem(ctx, from, to, func(it item) error {
		seq, err := it.TypSeq.intValue()
		if err != nil || seq <= 0 {
			return payloadErr("item missing typSeq", err)
		}
		validTime, err := parseBulletinTime(it.TypTm.str())
		if err != nil {
			return payloadErr("item has malformed typTm", err)
		}

		e, ok := seen[seq]
		if !ok {
			e = &domain.CatalogEntry{
				Seq:           seq,
				Name:          it.TypName.str(),
				NameEN:        it.TypEn.str(),
				Year:          validTime.Year(),
				FirstBulletin: validTime,
				LastBulletin:  validTime,
			}
			seen[seq] = e
			return nil
		}
		if validTime.Before(e.FirstBulletin) {
			e.FirstBulletin = validTime
			e.Year = validTime.Year()
		}
		if validTime.After(e.LastBulletin) {
			e.LastBulletin = validTime
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.CatalogEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastBulletin.Equal(out[j].LastBulletin) {
			return out[i].LastBulletin.After(out[j].LastBulletin)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// TrackPoints returns the bulletin track points for one storm inside
// [from, to], ordered by valid time. Points are raw (not yet deduplicated);
// TrackStore owns normalization.
func (c *Client) TrackPoints(ctx context.Context, seq int, from, to time.Time) ([]domain.TrackPoint, error) {
	var pts []domain.TrackPoint

	err := c.eachItem(ctx, from, to, func(it item) error {
		itemSeq, err := it.TypSeq.intValue()
		if err != nil {
			return payloadErr("item missing typSeq", err)
		}
		if itemSeq != seq {
			return nil
		}

		validTime, err := parseBulletinTime(it.TypTm.str())
		if err != nil {
			return payloadErr("item has malformed typTm", err)
		}
		lat, err := it.TypLat.floatValue()
		if err != nil {
			return payloadErr("item has malformed typLat", err)
		}
		lon, err := it.TypLon.floatValue()
		if err != nil {
			return payloadErr("item has malformed typLon", err)
		}

		ws := it.TypWs.floatOrZero()
		p := domain.TrackPoint{
			ValidTime:          validTime,
			Position:           domain.Position{Lat: lat, Lon: lon},
			InfluenceRadiusKm:  it.Typ15.floatOrZero(),
			StrongRadiusKm:     it.Typ25.floatOrZero(),
			IntensityClass:     intensityClass(ws),
			CentralPressureHPa: it.TypPs.floatOrZero(),
			MaxWindMS:          ws,
			LocationText:       it.TypLoc.str(),
		}
		if p.InfluenceRadiusKm <= 0 {
			p.InfluenceRadiusKm = defaultInfluenceRadius(ws)
		}
		if issued, err := parseBulletinTime(it.TmFc.str()); err == nil {
			p.IssuedAt = issued
		}

		pts = append(pts, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(pts, func(i, j int) bool { return pts[i].ValidTime.Before(pts[j].ValidTime) })
	return pts, nil
}

// eachItem pages through getTyphoonInfo for the date range and invokes fn
// for every item.
func (c *Client) eachItem(ctx context.Context, from, to time.Time, fn func(item) error) error {
	fromS := from.In(kst).Format("20060102")
	toS := to.In(kst).Format("20060102")

	for page := 1; page <= maxPages; page++ {
		body, err := c.fetchPage(ctx, fromS, toS, page)
		if err != nil {
			return err
		}
		if len(body.Items.Item) == 0 {
			return nil
		}
		for _, it := range body.Items.Item {
			if err := fn(it); err != nil {
				return err
			}
		}
		total, _ := body.TotalCount.intValue()
		if page*numOfRows >= total {
			return nil
		}
	}
	c.logger.Warn("upstream paging truncated", "max_pages", maxPages, "from", fromS, "to", toS)
	return nil
}

func (c *Client) fetchPage(ctx context.Context, fromS, toS string, page int) (*responseBody, error) {
	params := url.Values{
		"serviceKey": {c.serviceKey},
		"pageNo":     {fmt.Sprint(page)},
		"numOfRows":  {fmt.Sprint(numOfRows)},
		"dataType":   {"JSON"},
		"fromTmFc":   {fromS},
		"toTmFc":     {toS},
	}

	fullURL := c.baseURL + "/getTyphoonInfo?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("typhoon info request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, payloadErr("decode response", err)
	}

	header := api.Response.Header
	switch header.ResultCode {
	case resultNormal:
		return &api.Response.Body, nil
	case resultNoData:
		return &responseBody{}, nil
	default:
		return nil, &APIError{Code: header.ResultCode, Msg: header.ResultMsg}
	}
}

// intensityClass maps maximum wind to the KMA classification scale.
func intensityClass(maxWindMS float64) string {
	switch {
	case maxWindMS >= 44:
		return "TY" // typhoon, "very strong" band and up
	case maxWindMS >= 33:
		return "STY"
	case maxWindMS >= 25:
		return "STS"
	case maxWindMS >= 17:
		return "TS"
	case maxWindMS > 0:
		return "TD"
	default:
		return ""
	}
}

// defaultInfluenceRadius substitutes for bulletins that omit the 15 m/s wind
// radius, scaled from maximum wind so windowing still has a circle to test.
func defaultInfluenceRadius(maxWindMS float64) float64 {
	switch {
	case maxWindMS >= 44:
		return 350
	case maxWindMS >= 33:
		return 300
	case maxWindMS >= 25:
		return 250
	case maxWindMS > 0:
		return 180
	default:
		return 150
	}
}

// parseBulletinTime parses KMA "YYYYMMDDHHMM" timestamps, which are KST.
func parseBulletinTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty bulletin time")
	}
	t, err := time.ParseInLocation("200601021504", s, kst)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}
