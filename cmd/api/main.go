package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speech-compliance-go/internal/app"
	"speech-compliance-go/internal/config"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

func main() {
	log := logger.New()
	log.WithField("service", "speech-compliance-go").Info("starting service")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := cfg.Validate(config.ModeServe); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	a, err := app.Build(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build collaborators")
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// rules are extracted once and shared read-only by every request
	log.WithField("article_url", cfg.ArticleURL).Info("extracting rules")
	rules, err := a.Rules(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to extract rules")
	}
	log.WithField("rules", len(rules.Rules)).Info("rules loaded")

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newServer(a, rules, log).routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

type server struct {
	app   *app.App
	rules types.RuleSet
	log   *logger.Logger
}

func newServer(a *app.App, rules types.RuleSet, log *logger.Logger) *server {
	a.Orchestrator.BindRules(rules)
	return &server{app: a, rules: rules, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.log.WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/failures", s.handleFailures)
	return mux
}

// handleProcess runs one item synchronously; the item is given by locator and
// an optional kind, which is inferred when absent.
func (s *server) handleProcess(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "process")
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	locator := r.URL.Query().Get("locator")
	if locator == "" {
		reqLog.Warn("missing locator")
		http.Error(w, "missing locator", http.StatusBadRequest)
		return
	}
	kind := types.InferKind(locator)
	if k := r.URL.Query().Get("kind"); k != "" {
		parsed, err := types.ParseKind(k)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		kind = parsed
	}
	item := types.WorkItem{Kind: kind, Locator: locator}
	reqLog = reqLog.WithField("locator", locator).WithField("kind", kind)
	reqLog.Info("process request received")

	// ProcessItem queues concurrent requests behind the item in flight
	start := time.Now()
	res := s.app.Orchestrator.ProcessItem(r.Context(), item, s.rules)
	reqLog.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("status", res.Status).
		Info("processing finished")

	status := http.StatusOK
	if res.Status == types.StatusFailed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, res, reqLog)
}

func (s *server) handleFailures(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "failures")
	records, err := s.app.Ledger.List()
	if err != nil {
		reqLog.WithField("error", err.Error()).Error("ledger read failed")
		http.Error(w, "ledger read error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records, reqLog)
}

type errorLogger interface {
	Errorf(format string, args ...interface{})
}

func writeJSON(w http.ResponseWriter, status int, v any, log errorLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}
