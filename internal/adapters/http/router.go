package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skylineops/invoice-alerts/internal/config"
	"github.com/skylineops/invoice-alerts/internal/core/ports"
	"github.com/skylineops/invoice-alerts/internal/observability/metrics"
)

const (
	defaultCreateLimit  = 50
	defaultNextLimit    = 20
	defaultFlushLimit   = 25
	defaultListLimit    = 100
	defaultLookbackMins = 240
	maxInFlightRequests = 64
	backpressureMaxWait = 2 * time.Second
)

type Router struct {
	cfg      config.Config
	creator  ports.AlertCreator
	flusher  ports.AlertFlusher
	alerts   ports.AlertLister
	invoices ports.InvoiceReader
	notifier ports.Notifier
	docRepo  ports.DocumentRepository
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	creator ports.AlertCreator,
	flusher ports.AlertFlusher,
	alerts ports.AlertLister,
	invoices ports.InvoiceReader,
	notifier ports.Notifier,
	docRepo ports.DocumentRepository,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:      cfg,
		creator:  creator,
		flusher:  flusher,
		alerts:   alerts,
		invoices: invoices,
		notifier: notifier,
		docRepo:  docRepo,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)

	mux.HandleFunc("/jobs/run_alerts", rt.runAlerts)
	mux.HandleFunc("/jobs/run_alerts_next", rt.runAlertsNext)
	mux.HandleFunc("/jobs/flush_alerts", rt.flushAlerts)
	mux.HandleFunc("/jobs/test_slack", rt.testSlack)

	mux.HandleFunc("/api/alerts", rt.listAlerts)
	mux.HandleFunc("/api/alerts/export", rt.exportAlerts)
	mux.HandleFunc("/api/invoices", rt.listInvoices)
	mux.HandleFunc("/api/invoices/", rt.invoiceSubtree)

	if rt.cfg.DebugErrors {
		mux.HandleFunc("/api/debug/document/", rt.debugDocument)
	}

	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = backpressureMiddleware(handler, maxInFlightRequests, backpressureMaxWait)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) runAlerts(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	limit := queryInt(r, "limit", defaultCreateLimit)
	lookback := queryInt(r, "lookback_minutes", defaultLookbackMins)

	start := time.Now()
	summary, err := rt.creator.Run(r.Context(), limit, lookback)
	rt.recordJob("run_alerts", err, time.Since(start))
	if err != nil {
		rt.writeJobError(w, r, "run_alerts", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAlertCreation("api", summary.Created, summary.Upgraded)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"created":  summary.Created,
		"upgraded": summary.Upgraded,
	})
}

func (rt *Router) runAlertsNext(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	limit := queryInt(r, "limit", defaultNextLimit)
	lookback := queryInt(r, "lookback_minutes", defaultLookbackMins)

	start := time.Now()
	summary, err := rt.creator.RunNext(r.Context(), limit, lookback)
	rt.recordJob("run_alerts_next", err, time.Since(start))
	if err != nil {
		rt.writeJobError(w, r, "run_alerts_next", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAlertCreation("api", summary.Created, summary.Upgraded)
	}
	results := summary.Results
	if results == nil {
		results = []ports.NextResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"ran":      summary.Ran,
		"created":  summary.Created,
		"upgraded": summary.Upgraded,
		"results":  results,
	})
}

func (rt *Router) flushAlerts(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	limit := queryInt(r, "limit", defaultFlushLimit)

	start := time.Now()
	summary, err := rt.flusher.Run(r.Context(), limit)
	rt.recordJob("flush_alerts", err, time.Since(start))
	if err != nil {
		rt.writeJobError(w, r, "flush_alerts", err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordFlushOutcomes("api", summary.Sent, summary.Errored, summary.Skipped, summary.Healed)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"limit":   limit,
		"sent":    summary.Sent,
		"errored": summary.Errored,
		"skipped": summary.Skipped,
		"healed":  summary.Healed,
	})
}

func (rt *Router) testSlack(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	result := rt.notifier.PostTest(r.Context())
	if rt.metrics != nil {
		rt.metrics.RecordSlackPost("api", slackResultLabel(result))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           result.OK,
		"slack_result": result,
	})
}

func (rt *Router) listAlerts(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	rows := rt.alerts.List(r.Context(), ports.ListAlertsQuery{
		Limit:       queryInt(r, "limit", defaultListLimit),
		Q:           r.URL.Query().Get("q"),
		Status:      r.URL.Query().Get("status"),
		SlackStatus: r.URL.Query().Get("slack_status"),
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"count":  len(rows),
		"alerts": rows,
	})
}

func (rt *Router) listInvoices(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	query := ports.InvoiceQuery{
		Limit:   queryInt(r, "limit", defaultListLimit),
		Vendor:  r.URL.Query().Get("vendor"),
		DocType: r.URL.Query().Get("doc_type"),
	}
	if raw := r.URL.Query().Get("review_required"); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			query.ReviewRequired = &parsed
		}
	}

	rows, err := rt.invoices.List(r.Context(), query)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []ports.InvoiceSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"count":    len(rows),
		"invoices": rows,
	})
}

// invoiceSubtree handles /api/invoices/{document_id} and its /file child.
func (rt *Router) invoiceSubtree(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/invoices/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	if documentID, ok := strings.CutSuffix(rest, "/file"); ok {
		rt.invoiceFile(w, r, documentID)
		return
	}
	rt.invoiceDetail(w, r, rest)
}

func (rt *Router) invoiceDetail(w http.ResponseWriter, r *http.Request, documentID string) {
	detail, err := rt.invoices.Get(r.Context(), documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (rt *Router) invoiceFile(w http.ResponseWriter, r *http.Request, documentID string) {
	url, err := rt.invoices.FileURL(r.Context(), documentID)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (rt *Router) debugDocument(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/debug/document/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}
	doc, err := rt.docRepo.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) recordJob(job string, err error, duration time.Duration) {
	if rt.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	rt.metrics.RecordJobRun("api", job, status, duration)
}

// writeJobError hides failure detail unless debug mode is on: job errors can
// embed DSNs and SQL fragments.
func (rt *Router) writeJobError(w http.ResponseWriter, r *http.Request, job string, err error) {
	slog.Error("job_failed",
		"request_id", requestIDFromContext(r.Context()),
		"job", job,
		"error", err,
	)
	message := "internal error"
	if rt.cfg.DebugErrors {
		message = err.Error()
	}
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{"ok": false, "error": message})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		message := "internal error"
		if rt.cfg.DebugErrors {
			message = err.Error()
		}
		writeJSON(w, status, map[string]string{"error": message})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func slackResultLabel(result ports.DeliveryResult) string {
	switch {
	case result.OK:
		return "ok"
	case result.Skipped:
		return "skipped"
	default:
		return "error"
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
