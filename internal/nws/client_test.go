package nws_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/JonathanRys/weather-finder/internal/fetch"
	"github.com/JonathanRys/weather-finder/internal/nws"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*nws.Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := nws.New(nws.Config{BaseURL: srv.URL, UserAgent: "(weather-finder test, ops@example.com)", StationPageLimit: 2}, fetch.Options{})
	return c, srv
}

func stationJSON(ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf(`{"@id":"https://api.weather.gov/stations/%[1]s","@type":"wx:ObservationStation","stationIdentifier":"%[1]s","name":"Station %[1]s"}`, id)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func TestStationsFollowsPagination(t *testing.T) {
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "weather-finder") {
			t.Errorf("User-Agent = %q", ua)
		}
		if accept := r.Header.Get("Accept"); accept != nws.DefaultAccept {
			t.Errorf("Accept = %q", accept)
		}
		switch r.URL.Query().Get("cursor") {
		case "":
			if r.URL.Query().Get("state") != "MA" || r.URL.Query().Get("limit") != "2" {
				t.Errorf("unexpected first page query: %s", r.URL.RawQuery)
			}
			fmt.Fprintf(w, `{"@graph":%s,"pagination":{"next":"%s/stations?cursor=b"}}`, stationJSON("KBOS", "KORH"), srvURL)
		case "b":
			fmt.Fprintf(w, `{"@graph":%s,"pagination":{"next":"%s/stations?cursor=c"}}`, stationJSON("KBED", "KOWD"), srvURL)
		case "c":
			fmt.Fprintf(w, `{"@graph":%s}`, stationJSON("KPVC"))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("cursor"))
		}
	})
	srvURL = srv.URL

	got, err := c.Stations(context.Background(), "ma")
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	want := []string{"KBOS", "KORH", "KBED", "KOWD", "KPVC"}
	if len(got) != len(want) {
		t.Fatalf("got %d stations, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].StationIdentifier != id {
			t.Errorf("station %d = %s, want %s", i, got[i].StationIdentifier, id)
		}
	}
}

func TestStationsPartialOnFailure(t *testing.T) {
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			fmt.Fprintf(w, `{"@graph":%s,"pagination":{"next":"%s/stations?cursor=b"}}`, stationJSON("KBOS", "KORH"), srvURL)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"title":"Service Unavailable"}`))
		}
	})
	srvURL = srv.URL

	got, err := c.Stations(context.Background(), "MA")
	if !fetch.IsStatus(err, http.StatusServiceUnavailable) {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if len(got) != 2 || got[1].StationIdentifier != "KORH" {
		t.Fatalf("expected first page only, got %+v", got)
	}
}

func TestStationsStopsOnEmptyPage(t *testing.T) {
	calls := 0
	var srvURL string
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprintf(w, `{"@graph":[],"pagination":{"next":"%s/stations?cursor=again"}}`, srvURL)
	})
	srvURL = srv.URL

	got, err := c.Stations(context.Background(), "")
	if err != nil {
		t.Fatalf("Stations() error = %v", err)
	}
	if len(got) != 0 || calls != 1 {
		t.Fatalf("expected one call and no stations, got %d calls and %d stations", calls, len(got))
	}
}

func TestRadarStationsReadsGraph(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/radar/stations" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"@context":{},"@graph":[{"@id":"https://api.weather.gov/radar/stations/TDAY","@type":"wx:RadarStation",
			"id":"TDAY","name":"Dayton","stationType":"TDWR","geometry":"POINT(-84.123 40.022)",
			"elevation":{"unitCode":"wmoUnit:m","value":310.59118},"timeZone":"GMT",
			"latency":{"current":{"unitCode":"nwsUnit:s","value":0.143095},"host":"ldm4"},
			"rda":{"properties":{"mode":"Operational"}}}]}`))
	})

	got, err := c.RadarStations(context.Background())
	if err != nil {
		t.Fatalf("RadarStations() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 radar station, got %d", len(got))
	}
	rs := got[0]
	if rs.ID != "TDAY" || rs.StationType != "TDWR" || rs.Elevation.Value == nil || *rs.Elevation.Value != 310.59118 {
		t.Errorf("unexpected radar station: %+v", rs)
	}
	if rs.Latency == nil || rs.Latency.Host != "ldm4" {
		t.Errorf("unexpected latency: %+v", rs.Latency)
	}
	if !strings.Contains(string(rs.RDA), "Operational") {
		t.Errorf("rda not preserved: %s", rs.RDA)
	}
}

func TestRadarStationsError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	got, err := c.RadarStations(context.Background())
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	var se *fetch.StatusError
	if !errors.As(err, &se) || se.API != "nws" {
		t.Fatalf("expected nws StatusError, got %v", err)
	}
}

func TestZonesQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/zones" || q.Get("type") != "county" || q.Get("area") != "MA" {
			t.Errorf("unexpected request: %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		if q.Has("limit") {
			t.Errorf("limit should not be sent")
		}
		w.Write([]byte(`{"@graph":[{"@id":"https://api.weather.gov/zones/county/MAC025","id":"MAC025","type":"county","name":"Suffolk","state":"MA"}]}`))
	})

	got, err := c.Zones(context.Background(), nws.ZoneQuery{Type: "county", Area: "MA"})
	if err != nil {
		t.Fatalf("Zones() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "MAC025" || got[0].Name != "Suffolk" {
		t.Fatalf("unexpected zones: %+v", got)
	}
}

func TestZoneFollowsLink(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/zones/county/MAC025" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"@id":"x","id":"MAC025","type":"county","name":"Suffolk","state":"MA","gridIdentifier":"BOX",
			"geometry":"POLYGON((-71 42,-71.1 42.1,-71 42))"}`))
	})

	got, err := c.Zone(context.Background(), srv.URL+"/zones/county/MAC025")
	if err != nil {
		t.Fatalf("Zone() error = %v", err)
	}
	if got.GridIdentifier != "BOX" || !strings.HasPrefix(got.Geometry, "POLYGON") {
		t.Fatalf("unexpected zone: %+v", got)
	}
	if _, err := c.Zone(context.Background(), ""); !errors.Is(err, nws.ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestObservations(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stations/KBOS/observations":
			if r.URL.Query().Get("limit") != "2" {
				t.Errorf("limit = %q", r.URL.Query().Get("limit"))
			}
			w.Write([]byte(`{"@graph":[
				{"@id":"o1","station":"https://api.weather.gov/stations/KBOS","timestamp":"2025-07-10T20:54:00+00:00",
				 "temperature":{"unitCode":"wmoUnit:degC","value":27.2},"windSpeed":{"unitCode":"wmoUnit:km_h-1","value":null}},
				{"@id":"o2","station":"https://api.weather.gov/stations/KBOS","timestamp":"2025-07-10T19:54:00+00:00",
				 "temperature":{"unitCode":"wmoUnit:degC","value":26.1},"windSpeed":{"unitCode":"wmoUnit:km_h-1","value":14.8}}]}`))
		case "/stations/KBOS/observations/latest":
			w.Write([]byte(`{"@id":"o1","station":"https://api.weather.gov/stations/KBOS","timestamp":"2025-07-10T20:54:00+00:00",
				"textDescription":"Clear","temperature":{"unitCode":"wmoUnit:degC","value":27.2}}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	obs, err := c.Observations(context.Background(), "kbos", 2)
	if err != nil {
		t.Fatalf("Observations() error = %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].WindSpeed.Value != nil {
		t.Errorf("expected missing wind speed to stay nil")
	}
	if obs[1].WindSpeed.Value == nil || *obs[1].WindSpeed.Value != 14.8 {
		t.Errorf("unexpected wind speed: %+v", obs[1].WindSpeed)
	}
	if !obs[0].Timestamp.After(obs[1].Timestamp) {
		t.Errorf("expected newest first")
	}

	latest, err := c.LatestObservation(context.Background(), "KBOS")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	if latest.TextDescription != "Clear" || latest.Temperature.Value == nil {
		t.Errorf("unexpected latest observation: %+v", latest)
	}
}

func TestPointAndForecast(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/points/42.3601,-71.0589":
			w.Write([]byte(`{"@id":"p","gridId":"BOX","gridX":71,"gridY":90,"forecast":"f","forecastHourly":"fh","timeZone":"America/New_York"}`))
		case "/gridpoints/BOX/71,90/forecast":
			w.Write([]byte(`{"units":"us","periods":[{"number":1,"name":"Tonight","isDaytime":false,"temperature":68,"temperatureUnit":"F","shortForecast":"Clear"}]}`))
		case "/gridpoints/BOX/71,90/forecast/hourly":
			w.Write([]byte(`{"units":"us","periods":[{"number":1},{"number":2},{"number":3}]}`))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	pt, err := c.Point(ctx, 42.360082, -71.05888)
	if err != nil {
		t.Fatalf("Point() error = %v", err)
	}
	if pt.GridID != "BOX" || pt.GridX != 71 || pt.GridY != 90 {
		t.Fatalf("unexpected point: %+v", pt)
	}

	fc, err := c.Forecast(ctx, "box", pt.GridX, pt.GridY)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(fc.Periods) != 1 || fc.Periods[0].Name != "Tonight" || fc.Periods[0].Temperature != 68 {
		t.Fatalf("unexpected forecast: %+v", fc)
	}

	hourly, err := c.ForecastHourly(ctx, "BOX", 71, 90)
	if err != nil {
		t.Fatalf("ForecastHourly() error = %v", err)
	}
	if len(hourly.Periods) != 3 {
		t.Fatalf("expected 3 hourly periods, got %d", len(hourly.Periods))
	}
}

func TestInputValidation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request to %s", r.URL.Path)
	})
	ctx := context.Background()

	for _, tc := range []struct{ lat, lon float64 }{
		{91, 0},
		{0, -181},
		{math.NaN(), 0},
		{42, math.NaN()},
		{math.Inf(1), 0},
	} {
		if _, err := c.Point(ctx, tc.lat, tc.lon); !errors.Is(err, nws.ErrInvalidCoordinate) {
			t.Errorf("Point(%v, %v) error = %v, want ErrInvalidCoordinate", tc.lat, tc.lon, err)
		}
	}
	if _, err := c.Forecast(ctx, "", 1, 1); !errors.Is(err, nws.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if _, err := c.ForecastHourly(ctx, "BOX", -1, 1); err == nil {
		t.Errorf("expected grid range error")
	}
	if _, err := c.Observations(ctx, " ", 0); !errors.Is(err, nws.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if _, err := c.Fetch(ctx, ""); !errors.Is(err, nws.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
}

func TestPassthroughFieldsSurviveReencode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stations/KBOS/observations/latest":
			w.Write([]byte(`{"@id":"o","timestamp":"2025-07-10T20:54:00+00:00",
				"presentWeather":[{"intensity":"light","weather":"rain","rawString":"-RA"}]}`))
		case "/points/42.3601,-71.0589":
			w.Write([]byte(`{"gridId":"BOX","gridX":71,"gridY":90,
				"relativeLocation":{"city":"Boston","state":"MA"}}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	obs, err := c.LatestObservation(ctx, "KBOS")
	if err != nil {
		t.Fatalf("LatestObservation() error = %v", err)
	}
	b, _ := json.Marshal(obs)
	if !strings.Contains(string(b), `"presentWeather":[{"intensity":"light","weather":"rain","rawString":"-RA"}]`) {
		t.Errorf("presentWeather not preserved: %s", b)
	}

	pt, err := c.Point(ctx, 42.3601, -71.0589)
	if err != nil {
		t.Fatalf("Point() error = %v", err)
	}
	b, _ = json.Marshal(pt)
	if !strings.Contains(string(b), `"relativeLocation":{"city":"Boston","state":"MA"}`) {
		t.Errorf("relativeLocation not preserved: %s", b)
	}
}
