package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"logvault/internal/metrics"
	"logvault/internal/query"
	"logvault/internal/search"
	apperrors "logvault/pkg/errors"

	"github.com/gorilla/mux"
)

// metricsMiddleware records HTTP handler latency per path and method,
// the innermost layer of every route's middleware chain.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		metrics.ResponseTimeSeconds.WithLabelValues(r.URL.Path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// registerHandlers wires every HTTP route onto router, wrapped in the
// metrics middleware.
func (app *App) registerHandlers(router *mux.Router) {
	router.Use(metricsMiddleware)

	router.HandleFunc("/health", app.healthHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/logs/search", app.searchHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/search/page", app.searchPageHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/search/stream", app.searchStreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/search/timetable/stream", app.histogramStreamHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/time-aggregation", app.timeAggregationHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/histogram", app.histogramHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/count", app.countHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/fields", app.fieldsHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/sources", app.sourcesHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/levels", app.levelsHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/export.csv", app.exportCSVHandler).Methods(http.MethodGet)
	router.HandleFunc("/logs/export.json", app.exportJSONHandler).Methods(http.MethodGet)

	app.registerConfigHandlers(router)

	app.registerAlarmHandlers(router)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps an AppError's code onto an HTTP status and writes the
// standard {error, details} body. Errors that aren't AppErrors (a
// programmer mistake, not a domain failure) map to 500.
func writeError(w http.ResponseWriter, err error) {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		http.Error(w, fmt.Sprintf(`{"error":"INTERNAL","details":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}
	writeJSON(w, statusForCode(appErr.Code), appErr)
}

func statusForCode(code string) int {
	switch code {
	case apperrors.CodeNotFound:
		return http.StatusNotFound
	case apperrors.CodeQueryParse, apperrors.CodeConfigInvalid, apperrors.CodeRedactionInvalid, apperrors.CodeExtractionInvalid:
		return http.StatusBadRequest
	case apperrors.CodeCancelled:
		return 499 // client closed request, nginx convention
	case apperrors.CodeBackpressure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// parsePlan builds a query.Plan from the "q" and "regex" query
// parameters shared by every search-family endpoint.
func parsePlan(r *http.Request) (*query.Plan, error) {
	q := r.URL.Query().Get("q")
	isRegex, _ := strconv.ParseBool(r.URL.Query().Get("regex"))
	plan, err := query.Parse(query.ParseRequest{Query: q, IsRegex: isRegex})
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeQueryParse, "app", "parsePlan", "invalid query")
	}
	return plan, nil
}

// parseTimeRange builds a search.TimeRange from "range", or explicit
// "start"/"end" epoch-millisecond parameters when both are present.
func parseTimeRange(r *http.Request) search.TimeRange {
	q := r.URL.Query()
	if startMS, endMS := q.Get("start"), q.Get("end"); startMS != "" && endMS != "" {
		if s, err := strconv.ParseInt(startMS, 10, 64); err == nil {
			if e, err := strconv.ParseInt(endMS, 10, 64); err == nil {
				start := time.UnixMilli(s)
				end := time.UnixMilli(e)
				return search.TimeRange{Start: &start, End: &end}
			}
		}
	}
	return search.TimeRange{Named: q.Get("range")}
}

func parsePage(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}

func parseBucketDuration(r *http.Request) time.Duration {
	raw := r.URL.Query().Get("bucket")
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0
	}
	return d
}

// searchHandler runs a query and returns a single page of results (the
// same shape as /logs/search/page; kept as a distinct route per the
// documented API surface so existing callers of either path keep working).
func (app *App) searchHandler(w http.ResponseWriter, r *http.Request) {
	app.searchPageHandler(w, r)
}

func (app *App) searchPageHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := parsePage(r)
	result, err := app.searchExecutor.Search(r.Context(), plan, search.Options{
		Range:    parseTimeRange(r),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// sseWriter frames one Server-Sent Events message.
func sseWriter(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func (app *App) searchStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, pageSize := parsePage(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := app.searchExecutor.SearchStream(r.Context(), plan, search.Options{
		Range:    parseTimeRange(r),
		Page:     page,
		PageSize: pageSize,
	}, 5*time.Second)

	for ev := range events {
		switch ev.Kind {
		case "page":
			sseWriter(w, flusher, "page", ev.Page)
		case "done":
			sseWriter(w, flusher, "done", struct {
				Total int `json:"total"`
			}{ev.Total})
		case "error":
			sseWriter(w, flusher, "error", struct{ Error string }{ev.Err.Error()})
		}
	}
}

func (app *App) histogramStreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := app.searchExecutor.HistogramStream(r.Context(), plan, parseTimeRange(r), parseBucketDuration(r), 5*time.Second)
	for ev := range events {
		switch ev.Kind {
		case "init":
			sseWriter(w, flusher, "init", ev.Buckets)
		case "hist":
			sseWriter(w, flusher, "hist", ev.Buckets)
		case "done":
			sseWriter(w, flusher, "done", struct {
				Total int64 `json:"total"`
			}{ev.Total})
		case "error":
			sseWriter(w, flusher, "error", struct{ Error string }{ev.Err.Error()})
		}
	}
}

func (app *App) timeAggregationHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	slotCount, _ := strconv.Atoi(r.URL.Query().Get("slots"))
	buckets, err := app.searchExecutor.TimeAggregation(r.Context(), plan, parseTimeRange(r), slotCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (app *App) histogramHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	buckets, err := app.searchExecutor.Histogram(r.Context(), plan, parseTimeRange(r), parseBucketDuration(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

func (app *App) countHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := app.searchExecutor.Count(r.Context(), plan, parseTimeRange(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Count int `json:"count"`
	}{count})
}

func (app *App) fieldsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.searchExecutor.Fields())
}

func (app *App) sourcesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.searchExecutor.Sources())
}

func (app *App) levelsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, app.searchExecutor.Levels())
}

func (app *App) exportCSVHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="logs.csv"`)
	if err := app.searchExecutor.ExportCSV(r.Context(), plan, parseTimeRange(r), w); err != nil {
		app.logger.WithError(err).Warn("csv export failed mid-stream")
	}
}

func (app *App) exportJSONHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := parsePlan(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="logs.json"`)
	if err := app.searchExecutor.ExportJSON(r.Context(), plan, parseTimeRange(r), w); err != nil {
		app.logger.WithError(err).Warn("json export failed mid-stream")
	}
}

// decodeBody JSON-decodes the request body into v, returning a
// CONFIG_INVALID AppError on malformed JSON.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "app", "decodeBody", "malformed request body")
	}
	return nil
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
