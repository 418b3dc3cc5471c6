package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/Carlos329173/AEMET/internal/common"
	"github.com/Carlos329173/AEMET/internal/weather"
)

// DefaultAEMETBaseURL is the AEMET OpenData root.
const DefaultAEMETBaseURL = "https://opendata.aemet.es/opendata"

// aemetTimeLayout is how the Antarctic endpoint expects range bounds.
const aemetTimeLayout = "2006-01-02T15:04:05UTC"

// Upstream timestamps come either with an offset or zone-naive.
var (
	zonedLayouts = []string{time.RFC3339, "2006-01-02T15:04:05-0700"}
	naiveLayouts = []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"}
)

// AEMETProvider implements weather.Provider for the AEMET Antarctic
// observations endpoint. Each fetch is two calls: the first, authenticated
// with the API key, returns a pointer to the data; the second downloads it.
type AEMETProvider struct {
	name       string
	apiKey     string
	baseURL    string
	client     *http.Client
	circuit    *gobreaker.CircuitBreaker
	sourceZone *time.Location
}

// NewAEMETProvider builds a provider. sourceZone is used for upstream
// timestamps that carry no offset; nil means UTC.
func NewAEMETProvider(client *http.Client, baseURL, apiKey string, sourceZone *time.Location) *AEMETProvider {
	if baseURL == "" {
		baseURL = DefaultAEMETBaseURL
	}
	if sourceZone == nil {
		sourceZone = time.UTC
	}
	return &AEMETProvider{
		name:       "aemet",
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
		circuit:    newCircuitBreaker("aemet"),
		sourceZone: sourceZone,
	}
}

func (p *AEMETProvider) Name() string {
	return p.name
}

// aemetMetadata is the envelope of the first call.
type aemetMetadata struct {
	Descripcion string `json:"descripcion"`
	Estado      int    `json:"estado"`
	Datos       string `json:"datos"`
	Metadatos   string `json:"metadatos"`
}

// FetchMeasurements downloads and normalizes observations for station in
// [start, end].
func (p *AEMETProvider) FetchMeasurements(ctx context.Context, station string, start, end time.Time) (weather.FetchResult, error) {
	dataURL, err := p.fetchDataURL(ctx, station, start, end)
	if err != nil {
		return weather.FetchResult{}, err
	}

	raws, err := p.fetchPayload(ctx, dataURL)
	if err != nil {
		return weather.FetchResult{}, err
	}

	return normalize(station, raws, p.sourceZone), nil
}

func (p *AEMETProvider) fetchDataURL(ctx context.Context, station string, start, end time.Time) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("%w: aemet api key is not configured", weather.ErrUpstreamMetadata)
	}

	buildRequest := func() (*http.Request, error) {
		u := fmt.Sprintf("%s/api/antartida/datos/fechaini/%s/fechafin/%s/estacion/%s",
			p.baseURL,
			start.UTC().Format(aemetTimeLayout),
			end.UTC().Format(aemetTimeLayout),
			url.PathEscape(station),
		)
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("api_key", p.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", weather.ErrUpstreamMetadata, err)
	}
	defer resp.Body.Close()

	var meta aemetMetadata
	if err := json.NewDecoder(decodedBody(resp)).Decode(&meta); err != nil {
		return "", fmt.Errorf("%w: decode: %v", weather.ErrUpstreamMetadata, err)
	}
	if meta.Datos == "" {
		return "", fmt.Errorf("%w: no data pointer (estado %d: %s)", weather.ErrUpstreamMetadata, meta.Estado, meta.Descripcion)
	}
	return meta.Datos, nil
}

func (p *AEMETProvider) fetchPayload(ctx context.Context, dataURL string) ([]json.RawMessage, error) {
	buildRequest := func() (*http.Request, error) {
		// The data pointer is pre-signed; no api key.
		return http.NewRequest(http.MethodGet, dataURL, nil)
	}

	resp, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrUpstreamFetch, err)
	}
	defer resp.Body.Close()

	var raws []json.RawMessage
	if err := json.NewDecoder(decodedBody(resp)).Decode(&raws); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", weather.ErrUpstreamFetch, err)
	}
	return raws, nil
}

// normalize maps raw AEMET records to measurements. Records without a
// usable timestamp are counted in Dropped, never returned.
func normalize(station string, raws []json.RawMessage, sourceZone *time.Location) weather.FetchResult {
	res := weather.FetchResult{Records: make([]weather.Measurement, 0, len(raws))}

	for _, raw := range raws {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			res.Dropped++
			continue
		}

		var fhora string
		if err := json.Unmarshal(fields["fhora"], &fhora); err != nil {
			res.Dropped++
			continue
		}
		ts, ok := parseUpstreamTime(fhora, sourceZone)
		if !ok {
			res.Dropped++
			continue
		}

		payload := make(json.RawMessage, len(raw))
		copy(payload, raw)

		res.Records = append(res.Records, weather.Measurement{
			Station:     station,
			Timestamp:   ts,
			Temperature: common.ParseOptionalFloat(fields["temp"]),
			Pressure:    common.ParseOptionalFloat(fields["pres"]),
			Speed:       common.ParseOptionalFloat(fields["vel"]),
			RawPayload:  payload,
		})
	}
	return res
}

// parseUpstreamTime returns the UTC instant for an upstream timestamp.
// Zone-naive values are placed in sourceZone; wall times a DST jump skips
// move forward to the jump, and wall times repeated by a DST fallback are
// rejected.
func parseUpstreamTime(s string, sourceZone *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Second), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc, ok := weather.Localize(t, sourceZone)
			if !ok {
				return time.Time{}, false
			}
			return utc.Truncate(time.Second), true
		}
	}
	return time.Time{}, false
}
