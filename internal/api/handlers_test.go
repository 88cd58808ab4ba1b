package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/previsao/internal/api"
	"github.com/neexbeast/previsao/internal/forecast"
)

// ---- mock implementations ----

type mockAggregator struct {
	aggregateFn func(ctx context.Context, q forecast.Query) (*forecast.Result, error)
}

func (m *mockAggregator) Aggregate(ctx context.Context, q forecast.Query) (*forecast.Result, error) {
	return m.aggregateFn(ctx, q)
}

type mockPinger struct{ err error }

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

// ---- helpers ----

func sampleResult() *forecast.Result {
	return &forecast.Result{
		LocationLabel: "Brasília - DF",
		GeneratedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Forecast: []forecast.DailyForecast{
			{Day: 1, Date: "2024-05-01", Condition: "ps", ConditionDescription: "Predomínio de sol", TempMin: 16, TempMax: 28, UVIndex: 11},
		},
		CurrentConditions: forecast.UnavailableConditions(),
	}
}

func okAggregator(got *forecast.Query) *mockAggregator {
	return &mockAggregator{
		aggregateFn: func(_ context.Context, q forecast.Query) (*forecast.Result, error) {
			if got != nil {
				*got = q
			}
			return sampleResult(), nil
		},
	}
}

func failingAggregator(err error) *mockAggregator {
	return &mockAggregator{
		aggregateFn: func(_ context.Context, _ forecast.Query) (*forecast.Result, error) {
			return nil, err
		},
	}
}

const testToken = "secret-token"

func buildRouter(agg api.ForecastAggregator, token string, rateLimit int) http.Handler {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return api.NewRouter(api.NewHandlers(agg, log), token, rateLimit, nil, log)
}

type responseBody struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) responseBody {
	t.Helper()
	var body responseBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func messageOf(kind forecast.Kind) string {
	return (&forecast.Error{Kind: kind}).Message()
}

// ---- GET /api/v1/forecast ----

func TestGetForecast_ByName(t *testing.T) {
	var got forecast.Query
	router := buildRouter(okAggregator(&got), "", 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Bras%C3%ADlia", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "Brasília", got.Name)
	assert.Nil(t, got.Lat)

	body := decodeBody(t, w)
	assert.True(t, body.Success)
	assert.Empty(t, body.Message)

	var result map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &result))
	assert.Equal(t, "Brasília - DF", result["location_label"])
	current := result["current_conditions"].(map[string]any)
	assert.Equal(t, forecast.NotAvailable, current["temperature"])
	assert.Equal(t, forecast.UnavailableDescription, current["description"])
}

func TestGetForecast_ByCoordinates(t *testing.T) {
	var got forecast.Query
	router := buildRouter(okAggregator(&got), "", 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?lat=-15.79&lon=-47.88&days=7", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.Lat)
	require.NotNil(t, got.Lon)
	assert.InDelta(t, -15.79, *got.Lat, 1e-9)
	assert.InDelta(t, -47.88, *got.Lon, 1e-9)
	assert.Equal(t, 7, got.Days)
}

func TestGetForecast_Alias(t *testing.T) {
	router := buildRouter(okAggregator(nil), "", 0)

	req := httptest.NewRequest(http.MethodGet, "/api/previsao?lat=-23.55&lon=-46.63", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody(t, w).Success)
}

func TestGetForecast_MalformedParams(t *testing.T) {
	cases := map[string]string{
		"lat not a number":  "/api/v1/forecast?lat=abc&lon=-47.88",
		"lon not a number":  "/api/v1/forecast?lat=-15.79&lon=1,5",
		"days not a number": "/api/v1/forecast?name=Recife&days=seven",
		"lat out of range":  "/api/v1/forecast?lat=91&lon=0",
		"lon out of range":  "/api/v1/forecast?lat=0&lon=-181",
		"unsupported days":  "/api/v1/forecast?name=Recife&days=5",
	}

	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			router := buildRouter(&mockAggregator{
				aggregateFn: func(_ context.Context, _ forecast.Query) (*forecast.Result, error) {
					t.Fatal("aggregator should not be called for malformed input")
					return nil, nil
				},
			}, "", 0)

			req := httptest.NewRequest(http.MethodGet, target, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decodeBody(t, w)
			assert.False(t, body.Success)
			assert.Equal(t, messageOf(forecast.KindInvalidInput), body.Message)
		})
	}
}

func TestGetForecast_ClassifiedErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   forecast.Kind
	}{
		{"invalid input", forecast.InvalidInput("no location"), http.StatusBadRequest, forecast.KindInvalidInput},
		{"location not found", &forecast.Error{Kind: forecast.KindLocationNotFound}, http.StatusInternalServerError, forecast.KindLocationNotFound},
		{"city not found", &forecast.Error{Kind: forecast.KindCityNotFound}, http.StatusInternalServerError, forecast.KindCityNotFound},
		{"forecast unavailable", &forecast.Error{Kind: forecast.KindForecastUnavailable}, http.StatusInternalServerError, forecast.KindForecastUnavailable},
		{"unclassified", fmt.Errorf("boom"), http.StatusInternalServerError, forecast.KindUpstreamTransport},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := buildRouter(failingAggregator(tc.err), "", 0)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			body := decodeBody(t, w)
			assert.False(t, body.Success)
			assert.Equal(t, messageOf(tc.kind), body.Message)
			assert.Empty(t, body.Data)
		})
	}
}

// ---- POST /api/v1/forecast ----

func TestPostForecast_JSONBody(t *testing.T) {
	var got forecast.Query
	router := buildRouter(okAggregator(&got), "", 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast", strings.NewReader(`{"lat":-3.72,"lon":-38.54}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.Lat)
	assert.InDelta(t, -3.72, *got.Lat, 1e-9)
	assert.Empty(t, got.Name)
}

func TestPostForecast_MalformedJSON(t *testing.T) {
	router := buildRouter(okAggregator(nil), "", 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast", strings.NewReader(`{"lat":`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, messageOf(forecast.KindInvalidInput), decodeBody(t, w).Message)
}

func TestPostForecast_WrongTypes(t *testing.T) {
	router := buildRouter(okAggregator(nil), "", 0)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast", strings.NewReader(`{"lat":"north","lon":1}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ---- GET /api/v1/health ----

func TestHealth_NoDatabase(t *testing.T) {
	router := buildRouter(okAggregator(nil), testToken, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, map[string]string{"status": "ok"}, body)
}

func TestHealth_DatabaseOK(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	w := httptest.NewRecorder()
	api.HealthHandlerFunc(&mockPinger{}, log).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}

func TestHealth_DatabaseDown(t *testing.T) {
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	w := httptest.NewRecorder()
	api.HealthHandlerFunc(&mockPinger{err: fmt.Errorf("db unreachable")}, log).
		ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "error", body["db"])
}

// ---- Auth middleware ----

func TestBearerAuth_NoHeader(t *testing.T) {
	router := buildRouter(okAggregator(nil), testToken, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, decodeBody(t, w).Success)
}

func TestBearerAuth_WrongToken(t *testing.T) {
	router := buildRouter(okAggregator(nil), testToken, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_MissingBearerPrefix(t *testing.T) {
	router := buildRouter(okAggregator(nil), testToken, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/previsao?name=Recife", nil)
	req.Header.Set("Authorization", testToken) // no "Bearer " prefix
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerAuth_ValidToken(t *testing.T) {
	router := buildRouter(okAggregator(nil), testToken, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

// ---- Rate limiting ----

func TestRateLimit_Exceeded(t *testing.T) {
	router := buildRouter(okAggregator(nil), "", 1)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestRateLimit_Disabled(t *testing.T) {
	router := buildRouter(okAggregator(nil), "", 0)

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/forecast?name=Recife", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

// ---- Request logging ----

func TestRequestLogger_RecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := api.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/forecast", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "/api/v1/forecast", entry["path"])
	assert.EqualValues(t, http.StatusTeapot, entry["status"])
	assert.EqualValues(t, len("short and stout"), entry["bytes"])
}

func TestRequestLogger_ImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := api.RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.EqualValues(t, http.StatusOK, entry["status"])
}
