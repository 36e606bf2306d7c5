package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonathanRys/weather-finder/internal/archive"
	"github.com/JonathanRys/weather-finder/internal/cache"
	"github.com/JonathanRys/weather-finder/internal/fetch"
	"github.com/JonathanRys/weather-finder/internal/location"
	"github.com/JonathanRys/weather-finder/internal/nws"
	"github.com/JonathanRys/weather-finder/internal/observability"
)

type LocationAPI interface {
	Regions(ctx context.Context) ([]location.Region, error)
	Countries(ctx context.Context, regionCode string) ([]location.Country, error)
	AdminAreas(ctx context.Context, countryCode string) ([]location.AdminArea, error)
	Cities(ctx context.Context, countryCode, adminAreaCode, query string) ([]location.City, error)
	AutocompleteCities(ctx context.Context, query string) ([]location.City, error)
}

type WeatherAPI interface {
	RadarStations(ctx context.Context) ([]nws.RadarStation, error)
	Zones(ctx context.Context, q nws.ZoneQuery) ([]nws.Zone, error)
	Stations(ctx context.Context, state string) ([]nws.Station, error)
	Observations(ctx context.Context, stationID string, limit int) ([]nws.Observation, error)
	LatestObservation(ctx context.Context, stationID string) (nws.Observation, error)
	Point(ctx context.Context, lat, lon float64) (nws.Point, error)
	Forecast(ctx context.Context, office string, x, y int) (nws.Forecast, error)
	ForecastHourly(ctx context.Context, office string, x, y int) (nws.Forecast, error)
}

type History interface {
	ListObservations(ctx context.Context, stationID string, from, to time.Time, limit int, cursor *archive.Cursor, desc bool) (archive.Page, error)
}

type Server struct {
	loc     LocationAPI
	wx      WeatherAPI
	cache   cache.Store
	history History
}

// NewServer wires the handlers. store and history may be nil; without history the archive
// routes answer 404.
func NewServer(loc LocationAPI, wx WeatherAPI, store cache.Store, history History) *Server {
	return &Server{loc: loc, wx: wx, cache: store, history: history}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/locations", func(r chi.Router) {
		r.Get("/regions", s.handleRegions)
		r.Get("/regions/{region}/countries", s.handleCountries)
		r.Get("/countries/{country}/adminareas", s.handleAdminAreas)
		r.Get("/countries/{country}/adminareas/{admin}/cities", s.handleCities)
		r.Get("/autocomplete", s.handleAutocomplete)
	})
	r.Route("/weather", func(r chi.Router) {
		r.Get("/radar/stations", s.handleRadarStations)
		r.Get("/zones", s.handleZones)
		r.Get("/stations", s.handleStations)
		r.Get("/stations/{station}/observations", s.handleObservations)
		r.Get("/stations/{station}/observations/latest", s.handleLatestObservation)
		r.Get("/points", s.handlePoint)
		r.Get("/gridpoints/{office}/{x}/{y}/forecast", s.handleForecast)
		r.Get("/gridpoints/{office}/{x}/{y}/forecast/hourly", s.handleForecastHourly)
		r.Get("/history/{station}", s.handleHistory)
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps client errors onto response codes: bad input 400, upstream 404
// passes through, everything else from upstream is a 502.
func writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, location.ErrMissingCode), errors.Is(err, nws.ErrMissingID), errors.Is(err, nws.ErrInvalidCoordinate):
		writeError(w, http.StatusBadRequest, err.Error())
	case fetch.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found upstream")
	default:
		var se *fetch.StatusError
		if errors.As(err, &se) {
			slog.Warn("upstream error", "path", r.URL.Path, "api", se.API, "status", se.StatusCode)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "upstream request failed", "upstream_status": se.StatusCode})
			return
		}
		slog.Warn("upstream error", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}

// serveCached answers from the cache when possible, otherwise calls load and caches a
// successful result under the request URI.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) (any, error)) {
	key := r.URL.RequestURI()
	if s.cache != nil {
		if b, ok := s.lookup(r.Context(), key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, b)
			return
		}
	}

	v, err := load(r.Context())
	if err != nil {
		writeUpstreamError(w, r, err)
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "could not encode response")
		return
	}
	s.store(r.Context(), key, b)
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, http.StatusOK, b)
}

func (s *Server) lookup(ctx context.Context, key string) ([]byte, bool) {
	b, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		slog.Warn("cache get failed", "key", key, "error", err)
		observability.ObserveCacheLookup("error")
		return nil, false
	case ok:
		observability.ObserveCacheLookup("hit")
		return b, true
	default:
		observability.ObserveCacheLookup("miss")
		return nil, false
	}
}

func (s *Server) store(ctx context.Context, key string, b []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, b); err != nil {
		slog.Warn("cache set failed", "key", key, "error", err)
	}
}

func writeRaw(w http.ResponseWriter, status int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

// list keeps empty results serialised as [] rather than null.
func list[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func listLoader[T any](fn func(ctx context.Context) ([]T, error)) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		items, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return list(items), nil
	}
}

func (s *Server) handleRegions(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, listLoader(s.loc.Regions))
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	region := chi.URLParam(r, "region")
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]location.Country, error) {
		return s.loc.Countries(ctx, region)
	}))
}

func (s *Server) handleAdminAreas(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]location.AdminArea, error) {
		return s.loc.AdminAreas(ctx, country)
	}))
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")
	admin := chi.URLParam(r, "admin")
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]location.City, error) {
		return s.loc.Cities(ctx, country, admin, q)
	}))
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]location.City, error) {
		return s.loc.AutocompleteCities(ctx, q)
	}))
}

func (s *Server) handleRadarStations(w http.ResponseWriter, r *http.Request) {
	s.serveCached(w, r, listLoader(s.wx.RadarStations))
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	zq := nws.ZoneQuery{
		Type: strings.TrimSpace(r.URL.Query().Get("type")),
		Area: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("area"))),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		zq.Limit = n
	}
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]nws.Zone, error) {
		return s.wx.Zones(ctx, zq)
	}))
}

type stationsResponse struct {
	State    string        `json:"state,omitempty"`
	Count    int           `json:"count"`
	Complete bool          `json:"complete"`
	Error    string        `json:"error,omitempty"`
	Stations []nws.Station `json:"stations"`
}

// handleStations reports a listing that broke off part way as complete=false rather than
// failing it, as long as at least one page arrived. Partial listings are not cached.
func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	state := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("state")))
	key := r.URL.RequestURI()
	if s.cache != nil {
		if b, ok := s.lookup(r.Context(), key); ok {
			w.Header().Set("X-Cache", "HIT")
			writeRaw(w, http.StatusOK, b)
			return
		}
	}

	stations, err := s.wx.Stations(r.Context(), state)
	if err != nil && len(stations) == 0 {
		writeUpstreamError(w, r, err)
		return
	}
	resp := stationsResponse{State: state, Count: len(stations), Complete: err == nil, Stations: list(stations)}
	if err != nil {
		resp.Error = err.Error()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	b, mErr := json.Marshal(resp)
	if mErr != nil {
		writeError(w, http.StatusInternalServerError, "could not encode response")
		return
	}
	s.store(r.Context(), key, b)
	w.Header().Set("X-Cache", "MISS")
	writeRaw(w, http.StatusOK, b)
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	station := chi.URLParam(r, "station")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}
	s.serveCached(w, r, listLoader(func(ctx context.Context) ([]nws.Observation, error) {
		return s.wx.Observations(ctx, station, limit)
	}))
}

func (s *Server) handleLatestObservation(w http.ResponseWriter, r *http.Request) {
	station := chi.URLParam(r, "station")
	s.serveCached(w, r, func(ctx context.Context) (any, error) {
		return s.wx.LatestObservation(ctx, station)
	})
}

func (s *Server) handlePoint(w http.ResponseWriter, r *http.Request) {
	latStr := r.URL.Query().Get("lat")
	lonStr := r.URL.Query().Get("lon")
	if latStr == "" || lonStr == "" {
		writeError(w, http.StatusBadRequest, "lat and lon parameters are required")
		return
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
		writeError(w, http.StatusBadRequest, "invalid lat parameter")
		return
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || math.IsNaN(lon) || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "invalid lon parameter")
		return
	}
	s.serveCached(w, r, func(ctx context.Context) (any, error) {
		return s.wx.Point(ctx, lat, lon)
	})
}

func gridParams(r *http.Request) (office string, x, y int, ok bool) {
	office = chi.URLParam(r, "office")
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	y, errY := strconv.Atoi(chi.URLParam(r, "y"))
	if office == "" || errX != nil || errY != nil || x < 0 || y < 0 {
		return "", 0, 0, false
	}
	return office, x, y, true
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	office, x, y, ok := gridParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid point")
		return
	}
	s.serveCached(w, r, func(ctx context.Context) (any, error) {
		return s.wx.Forecast(ctx, office, x, y)
	})
}

func (s *Server) handleForecastHourly(w http.ResponseWriter, r *http.Request) {
	office, x, y, ok := gridParams(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid grid point")
		return
	}
	s.serveCached(w, r, func(ctx context.Context) (any, error) {
		return s.wx.ForecastHourly(ctx, office, x, y)
	})
}

type historyPointDTO struct {
	TS        time.Time       `json:"ts"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

type historyResponse struct {
	StationID  string            `json:"station_id"`
	From       *time.Time        `json:"from,omitempty"`
	To         *time.Time        `json:"to,omitempty"`
	Points     []historyPointDTO `json:"points"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "observation archive is disabled")
		return
	}
	station := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "station")))
	q := r.URL.Query()

	from, fromPtr, err := parseTimePtr(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to, toPtr, err := parseTimePtr(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to")
		return
	}
	limit := 0
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = n
	}
	desc := strings.EqualFold(strings.TrimSpace(q.Get("order")), "desc")
	cursor, err := archive.DecodeCursor(q.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	page, err := s.history.ListObservations(r.Context(), station, from, to, limit, cursor, desc)
	if errors.Is(err, archive.ErrInvalidCursor) {
		writeError(w, http.StatusBadRequest, "cursor does not belong to this station")
		return
	}
	if err != nil {
		slog.Error("history query failed", "station", station, "error", err)
		writeError(w, http.StatusInternalServerError, "could not query history")
		return
	}

	points := make([]historyPointDTO, 0, len(page.Records))
	for _, rec := range page.Records {
		payload := json.RawMessage(append([]byte(nil), rec.Payload...))
		points = append(points, historyPointDTO{TS: rec.TS, FetchedAt: rec.FetchedAt, Payload: payload})
	}
	writeJSON(w, http.StatusOK, historyResponse{StationID: station, From: fromPtr, To: toPtr, Points: points, NextCursor: page.NextCursor})
}

func parseTimePtr(v string) (time.Time, *time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, nil, err
	}
	t = t.UTC()
	return t, &t, nil
}
