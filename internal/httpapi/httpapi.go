// Package httpapi exposes the daemon's health and metrics listeners. Both
// read the orchestrator's published snapshot; neither can mutate the run.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"kestrel/internal/catalog"
	"kestrel/internal/config"
	"kestrel/internal/logging"
	"kestrel/internal/orchestrator"
	"kestrel/internal/supervisor"
)

// API serves the health and metrics endpoints on their configured binds.
type API struct {
	logger *slog.Logger
	orch   *orchestrator.Orchestrator
	sup    *supervisor.Supervisor
	cat    *catalog.Store

	servers []*http.Server
}

// New constructs the API around a running orchestrator. The supervisor
// may be nil when child supervision is disabled; the catalog may be nil
// when recording is disabled or the store failed to open.
func New(orch *orchestrator.Orchestrator, sup *supervisor.Supervisor, cat *catalog.Store, logger *slog.Logger) *API {
	return &API{
		logger: logging.NewComponentLogger(logger, "httpapi"),
		orch:   orch,
		sup:    sup,
		cat:    cat,
	}
}

// HealthHandler serves the /healthz JSON document; all other paths 404.
func (a *API) HealthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", a.handleHealth)
	return mux
}

// MetricsHandler serves the /metrics Prometheus text exposition.
func (a *API) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", a.handleMetrics)
	return mux
}

// Start binds the enabled listeners. Bind failures are fatal to startup;
// a daemon that cannot report health is not observable in the field.
func (a *API) Start(server config.Server) error {
	type binding struct {
		listener config.Listener
		handler  http.Handler
		name     string
	}
	for _, b := range []binding{
		{server.Health, a.HealthHandler(), "health"},
		{server.Metrics, a.MetricsHandler(), "metrics"},
	} {
		if !b.listener.Enabled {
			continue
		}
		ln, err := net.Listen("tcp", b.listener.Bind)
		if err != nil {
			return fmt.Errorf("bind %s listener on %s: %w", b.name, b.listener.Bind, err)
		}
		srv := &http.Server{Handler: b.handler, ReadHeaderTimeout: 5 * time.Second}
		a.servers = append(a.servers, srv)
		go func(name string) {
			if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
				a.logger.Warn("listener stopped",
					logging.Error(serveErr),
					logging.String("listener", name),
				)
			}
		}(b.name)
		a.logger.Info("listener started",
			logging.String("listener", b.name),
			logging.String("bind", ln.Addr().String()),
		)
	}
	return nil
}

// Stop shuts down all listeners.
func (a *API) Stop(ctx context.Context) {
	for _, srv := range a.servers {
		_ = srv.Shutdown(ctx)
	}
	a.servers = nil
}

type healthStorage struct {
	LowSpace bool    `json:"low_space"`
	FreeGB   float64 `json:"free_gb"`
}

type healthCatalog struct {
	Captures  int64 `json:"captures"`
	Converted int64 `json:"converted"`
	Simulated int64 `json:"simulated"`
	Bytes     int64 `json:"bytes"`
}

type healthDoc struct {
	OK             bool           `json:"ok"`
	Phase          string         `json:"phase"`
	Mode           string         `json:"mode"`
	Channel        int            `json:"channel"`
	Files          int64          `json:"files"`
	Bytes          int64          `json:"bytes"`
	TemperatureC   float64        `json:"temperature_celsius"`
	TemperatureOK  bool           `json:"temperature_ok"`
	Simulated      bool           `json:"simulated"`
	AdapterPresent bool           `json:"adapter_present"`
	Storage        healthStorage  `json:"storage"`
	Catalog        *healthCatalog `json:"catalog,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/healthz" {
		http.NotFound(w, r)
		return
	}
	s := a.orch.Snapshot()
	doc := healthDoc{
		OK:             s.Phase == orchestrator.PhaseRunning && s.AdapterPresent && !s.LowSpace,
		Phase:          string(s.Phase),
		Mode:           s.Mode,
		Channel:        s.CurrentChannel,
		Files:          s.HandshakesTotal,
		Bytes:          s.EvidenceBytes,
		TemperatureC:   s.TemperatureC,
		TemperatureOK:  s.TemperatureOK,
		Simulated:      s.DryRun,
		AdapterPresent: s.AdapterPresent,
		Storage: healthStorage{
			LowSpace: s.LowSpace,
			FreeGB:   float64(s.FreeBytes) / (1 << 30),
		},
	}
	if a.cat != nil {
		counts, err := a.cat.AggregateCounts(r.Context())
		if err != nil {
			// Health stays available without audit counts.
			a.logger.Debug("catalog aggregate query failed", logging.Error(err))
		} else {
			doc.Catalog = &healthCatalog{
				Captures:  counts.Captures,
				Converted: counts.Converted,
				Simulated: counts.Simulated,
				Bytes:     counts.Bytes,
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if !doc.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(doc)
}

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metrics" {
		http.NotFound(w, r)
		return
	}
	s := a.orch.Snapshot()

	var b strings.Builder
	counter := func(name string, value int64) {
		fmt.Fprintf(&b, "# TYPE kestrel_%s counter\nkestrel_%s %d\n", name, name, value)
	}
	gauge := func(name string, value float64) {
		fmt.Fprintf(&b, "# TYPE kestrel_%s gauge\nkestrel_%s %g\n", name, name, value)
	}

	counter("handshakes_total", s.HandshakesTotal)
	counter("rotations_total", s.RotationsTotal)
	counter("capture_simulated_total", s.SimulatedTotal)
	counter("convert_total", s.ConvertTotal)
	counter("convert_failed_total", s.ConvertFailedTotal)
	counter("convert_skipped_total", s.ConvertSkippedTotal)
	counter("rename_total", s.RenameTotal)
	counter("rename_skipped_total", s.RenameSkippedTotal)
	counter("quota_events_total", s.QuotaEventsTotal)
	counter("quota_pruned_days_total", s.PrunedDaysTotal)
	counter("low_space_warnings_total", s.LowSpaceWarningsTotal)
	counter("logs_bytes_total", s.LogsBytesTotal)

	gauge("current_channel", float64(s.CurrentChannel))
	gauge("last_capture_seq", float64(s.LastCaptureSeq))
	gauge("last_ssid_present", boolGauge(s.LastSSID != ""))
	gauge("temperature_celsius", s.TemperatureC)
	gauge("plugins_enabled", float64(s.PluginsEnabled))
	gauge("free_space_bytes", float64(s.FreeBytes))
	gauge("adapter_present", boolGauge(s.AdapterPresent))

	// One-hot mode gauge so dashboards can label by mode without text.
	fmt.Fprintf(&b, "# TYPE kestrel_mode gauge\n")
	for _, mode := range []config.Mode{config.ModePassive, config.ModeSemi, config.ModeAggressive} {
		fmt.Fprintf(&b, "kestrel_mode{mode=%q} %g\n", mode, boolGauge(string(mode) == s.Mode))
	}

	if a.sup != nil {
		writeLabeledInts(&b, "child_restarts_total", "counter", a.sup.RestartsTotal())
		writeLabeledInts(&b, "child_failures_total", "counter", a.sup.FailuresTotal())
		writeLabeledFloats(&b, "supervisor_backoff_seconds", "gauge", a.sup.BackoffSeconds())
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(b.String()))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

func writeLabeledInts(b *strings.Builder, name, kind string, values map[string]int) {
	fmt.Fprintf(b, "# TYPE kestrel_%s %s\n", name, kind)
	for _, proc := range sortedKeys(values) {
		fmt.Fprintf(b, "kestrel_%s{proc=%q} %d\n", name, proc, values[proc])
	}
}

func writeLabeledFloats(b *strings.Builder, name, kind string, values map[string]float64) {
	fmt.Fprintf(b, "# TYPE kestrel_%s %s\n", name, kind)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, proc := range keys {
		fmt.Fprintf(b, "kestrel_%s{proc=%q} %g\n", name, proc, values[proc])
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
