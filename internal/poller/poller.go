// Package poller archives and publishes the latest observation of a fixed set of stations on
// a cron schedule.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/JonathanRys/weather-finder/internal/archive"
	"github.com/JonathanRys/weather-finder/internal/nws"
)

type ObservationSource interface {
	LatestObservation(ctx context.Context, stationID string) (nws.Observation, error)
}

type Archive interface {
	InsertObservation(ctx context.Context, rec *archive.ObservationRecord) (bool, error)
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type Options struct {
	Schedule    string
	Stations    []string
	TopicPrefix string
	// Publisher may be nil.
	Publisher Publisher
	Logger    *slog.Logger
}

type Result struct {
	Fetched   int
	Inserted  int
	Published int
	Failed    int
}

type Poller struct {
	source      ObservationSource
	archive     Archive
	publisher   Publisher
	stations    []string
	topicPrefix string
	schedule    string
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func New(source ObservationSource, arch Archive, opts Options) *Poller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stations := make([]string, 0, len(opts.Stations))
	for _, s := range opts.Stations {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			stations = append(stations, s)
		}
	}
	prefix := opts.TopicPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Poller{
		source:      source,
		archive:     arch,
		publisher:   opts.Publisher,
		stations:    stations,
		topicPrefix: prefix,
		schedule:    opts.Schedule,
		logger:      logger.With("component", "poller"),
	}
}

// Poll runs one pass over all stations. A failing station is logged and skipped.
func (p *Poller) Poll(ctx context.Context) Result {
	var res Result
	for _, station := range p.stations {
		if ctx.Err() != nil {
			break
		}
		obs, err := p.source.LatestObservation(ctx, station)
		if err != nil {
			res.Failed++
			p.logger.Warn("latest observation failed", "station", station, "error", err)
			continue
		}
		res.Fetched++
		if obs.Timestamp.IsZero() {
			res.Failed++
			p.logger.Warn("observation without timestamp", "station", station)
			continue
		}

		payload, err := json.Marshal(obs)
		if err != nil {
			res.Failed++
			p.logger.Error("encode observation", "station", station, "error", err)
			continue
		}
		inserted, err := p.archive.InsertObservation(ctx, &archive.ObservationRecord{
			StationID: station,
			TS:        obs.Timestamp,
			Payload:   payload,
		})
		if err != nil {
			res.Failed++
			p.logger.Error("archive observation", "station", station, "error", err)
			continue
		}
		if !inserted {
			continue
		}
		res.Inserted++

		if p.publisher == nil {
			continue
		}
		topic := p.topicPrefix + station
		if err := p.publisher.Publish(topic, payload); err != nil {
			p.logger.Warn("publish observation", "topic", topic, "error", err)
			continue
		}
		res.Published++
	}
	p.logger.Info("poll complete", "stations", len(p.stations), "fetched", res.Fetched, "inserted", res.Inserted, "published", res.Published, "failed", res.Failed)
	return res
}

// Start schedules Poll. Overlapping runs are skipped.
func (p *Poller) Start(ctx context.Context) error {
	if len(p.stations) == 0 {
		return errors.New("poller: no stations configured")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return errors.New("poller: already started")
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(p.schedule, func() { p.Poll(ctx) }); err != nil {
		return err
	}
	c.Start()
	p.cron = c
	p.logger.Info("poller started", "schedule", p.schedule, "stations", p.stations)
	return nil
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		return
	}
	<-p.cron.Stop().Done()
	p.cron = nil
}
