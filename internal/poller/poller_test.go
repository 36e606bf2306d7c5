package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/JonathanRys/weather-finder/internal/archive"
	"github.com/JonathanRys/weather-finder/internal/nws"
)

type fakeSource struct {
	obs  map[string]nws.Observation
	errs map[string]error
}

func (f *fakeSource) LatestObservation(_ context.Context, id string) (nws.Observation, error) {
	if err := f.errs[id]; err != nil {
		return nws.Observation{}, err
	}
	return f.obs[id], nil
}

type fakeArchive struct {
	mu   sync.Mutex
	seen map[string]bool
	recs []archive.ObservationRecord
}

func (f *fakeArchive) InsertObservation(_ context.Context, rec *archive.ObservationRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	k := rec.StationID + "|" + rec.TS.String()
	if f.seen[k] {
		return false, nil
	}
	f.seen[k] = true
	f.recs = append(f.recs, *rec)
	return true, nil
}

type fakePublisher struct {
	topics []string
	err    error
}

func (f *fakePublisher) Publish(topic string, _ []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	return nil
}

func observationAt(ts time.Time) nws.Observation {
	return nws.Observation{URI: "o", Timestamp: ts, TextDescription: "Clear"}
}

func TestPollArchivesAndPublishes(t *testing.T) {
	ts := time.Date(2025, 7, 10, 20, 54, 0, 0, time.UTC)
	src := &fakeSource{
		obs:  map[string]nws.Observation{"KBOS": observationAt(ts), "KORH": observationAt(ts)},
		errs: map[string]error{"KBAD": errors.New("upstream down")},
	}
	arch := &fakeArchive{}
	pub := &fakePublisher{}
	p := New(src, arch, Options{
		Stations:    []string{" kbos", "KORH", "KBAD", ""},
		TopicPrefix: "weather-finder/observations",
		Publisher:   pub,
	})

	res := p.Poll(context.Background())
	want := Result{Fetched: 2, Inserted: 2, Published: 2, Failed: 1}
	if res != want {
		t.Fatalf("Poll() = %+v, want %+v", res, want)
	}
	if len(pub.topics) != 2 || pub.topics[0] != "weather-finder/observations/KBOS" {
		t.Fatalf("unexpected topics: %v", pub.topics)
	}
	if arch.recs[0].StationID != "KBOS" || !arch.recs[0].TS.Equal(ts) {
		t.Fatalf("unexpected record: %+v", arch.recs[0])
	}

	// Nothing new on the second pass.
	res = p.Poll(context.Background())
	want = Result{Fetched: 2, Inserted: 0, Published: 0, Failed: 1}
	if res != want {
		t.Fatalf("second Poll() = %+v, want %+v", res, want)
	}
}

func TestPollWithoutPublisher(t *testing.T) {
	ts := time.Date(2025, 7, 10, 20, 54, 0, 0, time.UTC)
	src := &fakeSource{obs: map[string]nws.Observation{"KBOS": observationAt(ts)}}
	p := New(src, &fakeArchive{}, Options{Stations: []string{"KBOS"}})

	res := p.Poll(context.Background())
	if res.Inserted != 1 || res.Published != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPollPublishFailureStillArchives(t *testing.T) {
	ts := time.Date(2025, 7, 10, 20, 54, 0, 0, time.UTC)
	src := &fakeSource{obs: map[string]nws.Observation{"KBOS": observationAt(ts)}}
	arch := &fakeArchive{}
	p := New(src, arch, Options{Stations: []string{"KBOS"}, Publisher: &fakePublisher{err: errors.New("broker gone")}})

	res := p.Poll(context.Background())
	if res.Inserted != 1 || res.Published != 0 || len(arch.recs) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPollSkipsObservationWithoutTimestamp(t *testing.T) {
	src := &fakeSource{obs: map[string]nws.Observation{"KBOS": {URI: "o"}}}
	arch := &fakeArchive{}
	p := New(src, arch, Options{Stations: []string{"KBOS"}})

	res := p.Poll(context.Background())
	if res.Failed != 1 || len(arch.recs) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestStartValidation(t *testing.T) {
	src := &fakeSource{}
	if err := New(src, &fakeArchive{}, Options{Schedule: "*/5 * * * *"}).Start(context.Background()); err == nil {
		t.Fatalf("expected error with no stations")
	}
	if err := New(src, &fakeArchive{}, Options{Schedule: "not a schedule", Stations: []string{"KBOS"}}).Start(context.Background()); err == nil {
		t.Fatalf("expected invalid schedule error")
	}

	p := New(src, &fakeArchive{}, Options{Schedule: "@every 1h", Stations: []string{"KBOS"}})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to fail")
	}
	p.Stop()
	p.Stop()
}
