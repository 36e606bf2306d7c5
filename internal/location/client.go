// Package location wraps the regions / countries / admin areas / cities lookup API.
package location

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/JonathanRys/weather-finder/internal/fetch"
)

const DefaultBaseURL = "http://dataservice.accuweather.com"

// ErrMissingCode is returned before any request when a required path code is blank.
var ErrMissingCode = errors.New("location: code is required")

type Config struct {
	BaseURL  string
	APIKey   string
	Language string
}

type Client struct {
	http   *fetch.Client
	logger *slog.Logger
}

// New builds a client. opts carries transport settings; its Name, BaseURL and Query are
// overwritten from cfg.
func New(cfg Config, opts fetch.Options) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	query := map[string]string{"apikey": cfg.APIKey}
	if cfg.Language != "" {
		query["language"] = cfg.Language
	}
	opts.Name = "location"
	opts.BaseURL = base
	opts.Query = query
	return &Client{
		http:   fetch.New(opts),
		logger: opts.Logger.With("component", "location-client"),
	}
}

func (c *Client) Regions(ctx context.Context) ([]Region, error) {
	return fetch.JSON[[]Region](ctx, c.http, "/locations/v1/regions", nil)
}

func (c *Client) Countries(ctx context.Context, regionCode string) ([]Country, error) {
	p, err := path("/locations/v1/countries", regionCode)
	if err != nil {
		return nil, err
	}
	return fetch.JSON[[]Country](ctx, c.http, p, nil)
}

func (c *Client) AdminAreas(ctx context.Context, countryCode string) ([]AdminArea, error) {
	p, err := path("/locations/v1/adminareas", countryCode)
	if err != nil {
		return nil, err
	}
	return fetch.JSON[[]AdminArea](ctx, c.http, p, nil)
}

// Cities searches within one admin area. An empty query lists what the API returns for a
// blank search.
func (c *Client) Cities(ctx context.Context, countryCode, adminAreaCode, query string) ([]City, error) {
	p, err := path("/locations/v1/cities", countryCode, adminAreaCode)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("searching cities", "country", countryCode, "admin_area", adminAreaCode, "q", query)
	return fetch.JSON[[]City](ctx, c.http, p+"/search", map[string]string{"q": query})
}

func (c *Client) AutocompleteCities(ctx context.Context, query string) ([]City, error) {
	return fetch.JSON[[]City](ctx, c.http, "/locations/v1/cities/autocomplete", map[string]string{"q": query})
}

func path(prefix string, codes ...string) (string, error) {
	var b strings.Builder
	b.WriteString(prefix)
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			return "", ErrMissingCode
		}
		b.WriteByte('/')
		b.WriteString(url.PathEscape(code))
	}
	return b.String(), nil
}
