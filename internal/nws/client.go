// Package nws is a client for the U.S. National Weather Service API (api.weather.gov).
package nws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/JonathanRys/weather-finder/internal/fetch"
	"github.com/JonathanRys/weather-finder/internal/paginate"
)

const (
	DefaultBaseURL   = "https://api.weather.gov"
	DefaultAccept    = "application/ld+json"
	DefaultPageLimit = 500

	graphField = "@graph"
)

var (
	ErrMissingID         = errors.New("nws: identifier is required")
	ErrInvalidCoordinate = errors.New("nws: coordinate out of range")
)

type Config struct {
	BaseURL string
	// UserAgent identifies the caller; api.weather.gov rejects requests without one.
	UserAgent        string
	Accept           string
	StationPageLimit int
	MaxStationPages  int
}

type Client struct {
	http      *fetch.Client
	pageLimit int
	maxPages  int
	logger    *slog.Logger
}

// New builds a client. opts carries transport settings; its Name, BaseURL and Headers are
// overwritten from cfg.
func New(cfg Config, opts fetch.Options) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	accept := cfg.Accept
	if accept == "" {
		accept = DefaultAccept
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "weather-finder"
	}
	limit := cfg.StationPageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Name = "nws"
	opts.BaseURL = base
	opts.Headers = map[string]string{"User-Agent": ua, "Accept": accept}
	return &Client{
		http:      fetch.New(opts),
		pageLimit: limit,
		maxPages:  cfg.MaxStationPages,
		logger:    opts.Logger.With("component", "nws-client"),
	}
}

func (c *Client) RadarStations(ctx context.Context) ([]RadarStation, error) {
	return fetch.Field[[]RadarStation](ctx, c.http, "/radar/stations", nil, graphField)
}

func (c *Client) Zones(ctx context.Context, q ZoneQuery) ([]Zone, error) {
	params := map[string]string{}
	if q.Type != "" {
		params["type"] = q.Type
	}
	if q.Area != "" {
		params["area"] = q.Area
	}
	if q.Limit > 0 {
		params["limit"] = strconv.Itoa(q.Limit)
	}
	return fetch.Field[[]Zone](ctx, c.http, "/zones", params, graphField)
}

// Zone follows an absolute zone link such as Station.County.
func (c *Client) Zone(ctx context.Context, zoneURL string) (Zone, error) {
	if strings.TrimSpace(zoneURL) == "" {
		return Zone{}, ErrMissingID
	}
	return fetch.JSON[Zone](ctx, c.http, zoneURL, nil)
}

type stationPage struct {
	Graph      []Station `json:"@graph"`
	Pagination struct {
		Next string `json:"next"`
	} `json:"pagination"`
}

// Stations lists observation stations in a state, walking pagination.next links. When a page
// fails, the stations collected so far are returned together with the error.
func (c *Client) Stations(ctx context.Context, state string) ([]Station, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageLimit))
	if state = strings.TrimSpace(state); state != "" {
		q.Set("state", strings.ToUpper(state))
	}
	first := "/stations?" + q.Encode()

	stations, err := paginate.Collect(ctx, first, func(ctx context.Context, u string) ([]Station, string, error) {
		page, err := fetch.JSON[stationPage](ctx, c.http, u, nil)
		if err != nil {
			return nil, "", err
		}
		return page.Graph, page.Pagination.Next, nil
	}, paginate.Options{MaxPages: c.maxPages})
	if err != nil {
		c.logger.Warn("station listing incomplete", "state", state, "collected", len(stations), "error", err)
		return stations, fmt.Errorf("listing stations for %q: %w", state, err)
	}
	return stations, nil
}

// Observations returns recent observations for a station, newest first. limit <= 0 uses the
// API default.
func (c *Client) Observations(ctx context.Context, stationID string, limit int) ([]Observation, error) {
	p, err := stationPath(stationID, "observations")
	if err != nil {
		return nil, err
	}
	var params map[string]string
	if limit > 0 {
		params = map[string]string{"limit": strconv.Itoa(limit)}
	}
	return fetch.Field[[]Observation](ctx, c.http, p, params, graphField)
}

func (c *Client) LatestObservation(ctx context.Context, stationID string) (Observation, error) {
	p, err := stationPath(stationID, "observations/latest")
	if err != nil {
		return Observation{}, err
	}
	return fetch.JSON[Observation](ctx, c.http, p, nil)
}

func (c *Client) Point(ctx context.Context, lat, lon float64) (Point, error) {
	if !validCoordinate(lat, lon) {
		return Point{}, fmt.Errorf("%w: %v,%v", ErrInvalidCoordinate, lat, lon)
	}
	p := "/points/" + coord(lat) + "," + coord(lon)
	return fetch.JSON[Point](ctx, c.http, p, nil)
}

func (c *Client) Forecast(ctx context.Context, office string, x, y int) (Forecast, error) {
	p, err := gridPath(office, x, y, "forecast")
	if err != nil {
		return Forecast{}, err
	}
	return fetch.JSON[Forecast](ctx, c.http, p, nil)
}

func (c *Client) ForecastHourly(ctx context.Context, office string, x, y int) (Forecast, error) {
	p, err := gridPath(office, x, y, "forecast/hourly")
	if err != nil {
		return Forecast{}, err
	}
	return fetch.JSON[Forecast](ctx, c.http, p, nil)
}

// Fetch follows any API link without a target type.
func (c *Client) Fetch(ctx context.Context, link string) (map[string]any, error) {
	if strings.TrimSpace(link) == "" {
		return nil, ErrMissingID
	}
	return fetch.Raw(ctx, c.http, link)
}

// validCoordinate rejects NaN, which slips through plain range comparisons.
func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// coord trims to the four decimal places the API accepts without redirecting.
func coord(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}

func stationPath(stationID, suffix string) (string, error) {
	stationID = strings.TrimSpace(stationID)
	if stationID == "" {
		return "", ErrMissingID
	}
	return "/stations/" + url.PathEscape(strings.ToUpper(stationID)) + "/" + suffix, nil
}

func gridPath(office string, x, y int, suffix string) (string, error) {
	office = strings.TrimSpace(office)
	if office == "" {
		return "", ErrMissingID
	}
	if x < 0 || y < 0 {
		return "", fmt.Errorf("nws: grid coordinate %d,%d out of range", x, y)
	}
	return fmt.Sprintf("/gridpoints/%s/%d,%d/%s", url.PathEscape(strings.ToUpper(office)), x, y, suffix), nil
}
