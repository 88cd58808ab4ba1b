package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/neexbeast/previsao/internal/xmldoc"
)

const (
	httpTimeout      = 10 * time.Second
	defaultUserAgent = "previsao/1.0"
)

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// httpStatusError reports an upstream response that arrived with a non-200 status.
type httpStatusError struct {
	Code int
	URL  string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d", e.URL, e.Code)
}

// doGet performs a GET request and returns the body of a 200 response.
// The caller closes the body.
func doGet(ctx context.Context, client *http.Client, rawURL, userAgent string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, URL: rawURL}
	}

	return resp.Body, nil
}

// getJSON performs a GET request and decodes the JSON response into dst.
func getJSON(ctx context.Context, client *http.Client, rawURL, userAgent string, dst any) error {
	body, err := doGet(ctx, client, rawURL, userAgent)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return nil
}

// getXML performs a GET request and decodes the XML response into a document.
func getXML(ctx context.Context, client *http.Client, rawURL string) (xmldoc.Document, error) {
	body, err := doGet(ctx, client, rawURL, "")
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := xmldoc.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decoding response from %s: %w", rawURL, err)
	}
	return doc, nil
}

// ---- Nominatim ----

// GeocoderClient resolves coordinates to place names with OpenStreetMap Nominatim.
type GeocoderClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

const nominatimDefaultURL = "https://nominatim.openstreetmap.org"

// placeFields is the address granularity preference, coarsest first.
var placeFields = []string{"city", "town", "village", "suburb", "neighbourhood"}

// NewGeocoderClient constructs a GeocoderClient using the public Nominatim instance.
func NewGeocoderClient(userAgent string) *GeocoderClient {
	return NewGeocoderClientWithURL(nominatimDefaultURL, userAgent, nil)
}

// NewGeocoderClientWithURL constructs a GeocoderClient pointing at a custom base URL.
// A nil client gets the default 10-second timeout.
func NewGeocoderClientWithURL(baseURL, userAgent string, client *http.Client) *GeocoderClient {
	if client == nil {
		client = newHTTPClient()
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &GeocoderClient{baseURL: strings.TrimRight(baseURL, "/"), userAgent: userAgent, client: client}
}

type nominatimResponse struct {
	Address map[string]any `json:"address"`
	Error   string         `json:"error"`
}

// Reverse returns the most specific populated place name around lat/lon.
func (c *GeocoderClient) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("addressdetails", "1")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	endpoint := c.baseURL + "/reverse?" + q.Encode()

	var raw nominatimResponse
	if err := getJSON(ctx, c.client, endpoint, c.userAgent, &raw); err != nil {
		return Place{}, newError(KindLocationNotFound, fmt.Errorf("nominatim reverse for %g,%g: %w", lat, lon, err))
	}

	for _, field := range placeFields {
		if name, ok := raw.Address[field].(string); ok && strings.TrimSpace(name) != "" {
			return Place{DisplayName: strings.TrimSpace(name)}, nil
		}
	}

	return Place{}, newError(KindLocationNotFound, fmt.Errorf("nominatim: no place name for %g,%g", lat, lon))
}

// ---- CPTEC city directory ----

const cptecDefaultURL = "http://servicos.cptec.inpe.br/XML"

// DirectoryClient searches the CPTEC city directory.
type DirectoryClient struct {
	baseURL string
	client  *http.Client
}

// NewDirectoryClient constructs a DirectoryClient using the production CPTEC URL.
func NewDirectoryClient() *DirectoryClient {
	return NewDirectoryClientWithURL(cptecDefaultURL, nil)
}

// NewDirectoryClientWithURL constructs a DirectoryClient pointing at a custom base URL.
func NewDirectoryClientWithURL(baseURL string, client *http.Client) *DirectoryClient {
	if client == nil {
		client = newHTTPClient()
	}
	return &DirectoryClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Lookup returns the first directory entry matching name. The search is
// sent without diacritics.
func (c *DirectoryClient) Lookup(ctx context.Context, name string) (City, error) {
	search := StripDiacritics(strings.TrimSpace(name))
	endpoint := c.baseURL + "/listaCidades?city=" + url.QueryEscape(search)

	doc, err := getXML(ctx, c.client, endpoint)
	if err != nil {
		return City{}, newError(KindCityNotFound, fmt.Errorf("cptec city search for %s: %w", search, err))
	}

	entries := xmldoc.AsList(doc.Path("cidades", "cidade"))
	if len(entries) == 0 {
		return City{}, newError(KindCityNotFound, fmt.Errorf("cptec: no city matches %s", search))
	}

	first := entries[0]
	code, ok := xmldoc.Int(xmldoc.Lookup(first, "id"))
	if !ok {
		return City{}, newError(KindCityNotFound, fmt.Errorf("cptec: city entry for %s has no id", search))
	}

	city := City{
		Code:   code,
		Name:   xmldoc.String(xmldoc.Lookup(first, "nome")),
		Region: strings.ToUpper(xmldoc.String(xmldoc.Lookup(first, "uf"))),
	}
	if city.Name == "" {
		city.Name = strings.TrimSpace(name)
	}

	return city, nil
}

// ---- CPTEC forecast ----

// ExtendedDays selects the 7-day forecast feed.
const ExtendedDays = 7

// ForecastClient fetches per-city forecasts from CPTEC.
type ForecastClient struct {
	baseURL string
	client  *http.Client
}

// NewForecastClient constructs a ForecastClient using the production CPTEC URL.
func NewForecastClient() *ForecastClient {
	return NewForecastClientWithURL(cptecDefaultURL, nil)
}

// NewForecastClientWithURL constructs a ForecastClient pointing at a custom base URL.
func NewForecastClientWithURL(baseURL string, client *http.Client) *ForecastClient {
	if client == nil {
		client = newHTTPClient()
	}
	return &ForecastClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

var errMalformedDay = errors.New("malformed forecast day")

// Fetch retrieves the forecast of city code. days == ExtendedDays selects
// the 7-day feed; any other value the default one.
func (c *ForecastClient) Fetch(ctx context.Context, code, days int) (*Forecast, error) {
	feed := "previsao.xml"
	if days == ExtendedDays {
		feed = "previsao7dias.xml"
	}
	endpoint := fmt.Sprintf("%s/cidade/%d/%s", c.baseURL, code, feed)

	doc, err := getXML(ctx, c.client, endpoint)
	if err != nil {
		return nil, newError(KindForecastUnavailable, fmt.Errorf("cptec forecast for city %d: %w", code, err))
	}

	entries := xmldoc.AsList(doc.Path("cidade", "previsao"))
	if len(entries) == 0 {
		return nil, newError(KindForecastUnavailable, fmt.Errorf("cptec: forecast for city %d has no days", code))
	}

	out := make([]DailyForecast, 0, len(entries))
	for i, e := range entries {
		day, err := parseDay(i+1, e)
		if err != nil {
			return nil, newError(KindForecastUnavailable, fmt.Errorf("cptec forecast for city %d, day %d: %w", code, i+1, err))
		}
		out = append(out, day)
	}

	f := &Forecast{Days: out}
	if ts, err := time.Parse(time.DateOnly, xmldoc.String(doc.Path("cidade", "atualizacao"))); err == nil {
		f.UpdatedAt = ts.UTC()
	}

	return f, nil
}

func parseDay(index int, e any) (DailyForecast, error) {
	if _, ok := e.(map[string]any); !ok {
		return DailyForecast{}, errMalformedDay
	}

	date := xmldoc.String(xmldoc.Lookup(e, "dia"))
	tempMax, okMax := xmldoc.Float(xmldoc.Lookup(e, "maxima"))
	tempMin, okMin := xmldoc.Float(xmldoc.Lookup(e, "minima"))
	if date == "" || !okMax || !okMin {
		return DailyForecast{}, fmt.Errorf("%w: missing date or temperatures", errMalformedDay)
	}

	condition := strings.ToLower(xmldoc.String(xmldoc.Lookup(e, "tempo")))
	uv, _ := xmldoc.Float(xmldoc.Lookup(e, "iuv"))

	return DailyForecast{
		Day:                  index,
		Date:                 date,
		Condition:            condition,
		ConditionDescription: DescribeCondition(condition),
		TempMin:              tempMin,
		TempMax:              tempMax,
		UVIndex:              uv,
	}, nil
}

// ---- CPTEC current conditions ----

// ErrStationNotReported is returned when the feed has no entry for the station.
var ErrStationNotReported = errors.New("station not reported")

// ConditionsClient reads the all-capitals current-conditions feed.
type ConditionsClient struct {
	baseURL string
	client  *http.Client
}

// NewConditionsClient constructs a ConditionsClient using the production CPTEC URL.
func NewConditionsClient() *ConditionsClient {
	return NewConditionsClientWithURL(cptecDefaultURL, nil)
}

// NewConditionsClientWithURL constructs a ConditionsClient pointing at a custom base URL.
func NewConditionsClientWithURL(baseURL string, client *http.Client) *ConditionsClient {
	if client == nil {
		client = newHTTPClient()
	}
	return &ConditionsClient{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Fetch downloads the full feed and returns the entry of station.
func (c *ConditionsClient) Fetch(ctx context.Context, station string) (*CurrentConditions, error) {
	endpoint := c.baseURL + "/capitais/condicoesAtuais.xml"

	doc, err := getXML(ctx, c.client, endpoint)
	if err != nil {
		return nil, fmt.Errorf("cptec current conditions: %w", err)
	}

	for _, e := range xmldoc.AsList(doc.Path("capitais", "metar")) {
		code := strings.TrimSpace(xmldoc.String(xmldoc.Lookup(e, "codigo")))
		if !strings.EqualFold(code, station) {
			continue
		}
		return parseMetar(e), nil
	}

	return nil, fmt.Errorf("cptec current conditions for %s: %w", station, ErrStationNotReported)
}

func parseMetar(e any) *CurrentConditions {
	description := strings.TrimSpace(xmldoc.String(xmldoc.Lookup(e, "tempo_desc")))
	if description == "" {
		if code := xmldoc.String(xmldoc.Lookup(e, "tempo")); code != "" {
			description = DescribeCondition(code)
		} else {
			description = NotAvailable
		}
	}

	observedAt := strings.TrimSpace(xmldoc.String(xmldoc.Lookup(e, "atualizacao")))
	if observedAt == "" {
		observedAt = NotAvailable
	}

	return &CurrentConditions{
		StationCode:   strings.ToUpper(strings.TrimSpace(xmldoc.String(xmldoc.Lookup(e, "codigo")))),
		ObservedAt:    observedAt,
		Temperature:   reading(xmldoc.Lookup(e, "temperatura")),
		Humidity:      reading(xmldoc.Lookup(e, "umidade")),
		Pressure:      reading(xmldoc.Lookup(e, "pressao")),
		WindSpeed:     reading(xmldoc.Lookup(e, "vento_int")),
		WindDirection: reading(xmldoc.Lookup(e, "vento_dir")),
		Visibility:    reading(xmldoc.Lookup(e, "intensidade")),
		Description:   description,
	}
}

// reading converts a feed value, tolerating bounds such as ">10000".
func reading(v any) Reading {
	if s, ok := v.(string); ok {
		v = strings.TrimLeft(strings.TrimSpace(s), "<>")
	}
	if f, ok := xmldoc.Float(v); ok {
		return Available(f)
	}
	return Missing()
}
