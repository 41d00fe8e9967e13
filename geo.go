package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

const DefaultGeoEndpoint = "https://ipwho.is/{ip}"

// Geolocator finds the country of an IP address.
type Geolocator interface {
	Lookup(ctx context.Context, ip string) (GeoResult, error)
}

// ответ ipwho.is / ip-api.com: поля обоих форматов
type geoAPIResponse struct {
	Success     *bool  `json:"success"`
	Status      string `json:"status"`
	Message     string `json:"message"`
	CountryCode string `json:"country_code"`
	CountryAlt  string `json:"countryCode"`
	Flag        struct {
		Emoji string `json:"emoji"`
	} `json:"flag"`
}

type httpGeolocator struct {
	client   *http.Client
	endpoint string // "{ip}" заменяется адресом
}

func newHTTPGeolocator(client *http.Client, endpoint string) *httpGeolocator {
	if endpoint == "" {
		endpoint = DefaultGeoEndpoint
	}
	return &httpGeolocator{client: client, endpoint: endpoint}
}

func (g *httpGeolocator) Lookup(ctx context.Context, ip string) (GeoResult, error) {
	u := g.endpoint
	if strings.Contains(u, "{ip}") {
		u = strings.ReplaceAll(u, "{ip}", url.PathEscape(ip))
	} else {
		u = strings.TrimRight(u, "/") + "/" + url.PathEscape(ip)
	}
	req, err := NewRequestWithUA(ctx, http.MethodGet, u)
	if err != nil {
		return GeoResult{}, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return GeoResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return GeoResult{}, fmt.Errorf("http %d", resp.StatusCode)
	}
	var data geoAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeoResponse)).Decode(&data); err != nil {
		return GeoResult{}, fmt.Errorf("decode: %w", err)
	}
	if (data.Success != nil && !*data.Success) || strings.EqualFold(data.Status, "fail") {
		return GeoResult{}, fmt.Errorf("lookup failed: %s", firstNonEmpty(data.Message, "no reason"))
	}
	return GeoResult{
		CountryCode: firstNonEmpty(data.CountryCode, data.CountryAlt),
		Flag:        data.Flag.Emoji,
	}, nil
}

// mmdbGeolocator reads a local MaxMind country database.
type mmdbGeolocator struct {
	db *geoip2.Reader
}

func openMMDB(path string) (*mmdbGeolocator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip db: %w", err)
	}
	return &mmdbGeolocator{db: db}, nil
}

func (m *mmdbGeolocator) Lookup(_ context.Context, ip string) (GeoResult, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return GeoResult{}, fmt.Errorf("bad ip %q", ip)
	}
	rec, err := m.db.Country(addr)
	if err != nil {
		return GeoResult{}, err
	}
	if rec.Country.IsoCode == "" {
		return GeoResult{}, errors.New("not in database")
	}
	return GeoResult{CountryCode: rec.Country.IsoCode}, nil
}

func (m *mmdbGeolocator) Close() error { return m.db.Close() }

// geoChain asks each geolocator in turn until one gives a usable answer.
type geoChain []Geolocator

func (c geoChain) Lookup(ctx context.Context, ip string) (GeoResult, error) {
	err := errors.New("no geolocator configured")
	for _, g := range c {
		res, lerr := g.Lookup(ctx, ip)
		if lerr != nil {
			err = lerr
			continue
		}
		if validFlag(res.Flag) || CountryFlag(res.CountryCode) != "" {
			return res, nil
		}
		err = errors.New("empty geolocation result")
	}
	return GeoResult{}, err
}
