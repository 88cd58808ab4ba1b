package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/neexbeast/previsao/internal/forecast"
)

const maxBodyBytes = 1 << 16

var validate = validator.New()

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	agg ForecastAggregator
	log *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(agg ForecastAggregator, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{agg: agg, log: log}
}

// envelope is the body of every forecast response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// forecastRequest is the inbound query, from the query string or a JSON body.
type forecastRequest struct {
	Name string   `json:"name" validate:"omitempty,max=120"`
	Lat  *float64 `json:"lat" validate:"omitempty,gte=-90,lte=90"`
	Lon  *float64 `json:"lon" validate:"omitempty,gte=-180,lte=180"`
	Days int      `json:"days" validate:"omitempty,oneof=4 7"`
}

func (f forecastRequest) toQuery() forecast.Query {
	return forecast.Query{Name: f.Name, Lat: f.Lat, Lon: f.Lon, Days: f.Days}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetForecast handles GET /api/v1/forecast and GET /api/previsao.
func (h *Handlers) GetForecast(w http.ResponseWriter, r *http.Request) {
	req, err := parseQueryString(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.serve(w, r, req)
}

// PostForecast handles POST /api/v1/forecast with a JSON body.
func (h *Handlers) PostForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, r, forecast.InvalidInput("decoding body: %v", err))
		return
	}
	h.serve(w, r, req)
}

func (h *Handlers) serve(w http.ResponseWriter, r *http.Request, req forecastRequest) {
	if err := validate.Struct(req); err != nil {
		h.writeError(w, r, forecast.InvalidInput("%v", err))
		return
	}

	result, err := h.agg.Aggregate(r.Context(), req.toQuery())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: result})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := forecast.Classify(err)
	status := e.HTTPStatus()

	attrs := []any{"kind", e.Kind.String(), "request_id", middleware.GetReqID(r.Context()), "err", err}
	if status >= http.StatusInternalServerError {
		h.log.Error("forecast request failed", attrs...)
	} else {
		h.log.Info("forecast request rejected", attrs...)
	}

	writeJSON(w, status, envelope{Success: false, Message: e.Message()})
}

// parseQueryString reads name, lat, lon and days. Malformed numbers are
// invalid input.
func parseQueryString(r *http.Request) (forecastRequest, error) {
	values := r.URL.Query()
	req := forecastRequest{Name: values.Get("name")}

	var err error
	if req.Lat, err = parseFloatParam(values.Get("lat"), "lat"); err != nil {
		return req, err
	}
	if req.Lon, err = parseFloatParam(values.Get("lon"), "lon"); err != nil {
		return req, err
	}

	if s := strings.TrimSpace(values.Get("days")); s != "" {
		days, convErr := strconv.Atoi(s)
		if convErr != nil {
			return req, forecast.InvalidInput("days %q is not an integer", s)
		}
		req.Days = days
	}

	return req, nil
}

func parseFloatParam(s, name string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, forecast.InvalidInput("%s %q is not a number", name, s)
	}
	return &v, nil
}

// HealthHandlerFunc returns an http.HandlerFunc that reports liveness and,
// when db is non-nil, database connectivity.
func HealthHandlerFunc(db dbPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"status": "ok"}
		if db == nil {
			writeJSON(w, http.StatusOK, body)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body["db"] = "ok"
		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["db"] = "error"
		}

		writeJSON(w, status, body)
	}
}
