// Package app wires the scanner's collaborators from configuration. Both the
// CLI and the HTTP service build through it; nothing here is package-global.
package app

import (
	"context"
	"fmt"
	"time"

	"speech-compliance-go/internal/classifier"
	"speech-compliance-go/internal/config"
	"speech-compliance-go/internal/egress"
	"speech-compliance-go/internal/extractor"
	"speech-compliance-go/internal/ledger"
	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/media"
	"speech-compliance-go/internal/pipeline"
	"speech-compliance-go/internal/review"
	"speech-compliance-go/internal/sink"
	"speech-compliance-go/internal/state"
	"speech-compliance-go/internal/transcription"
	"speech-compliance-go/internal/types"
)

type App struct {
	Config       config.Config
	Completer    llm.Completer
	Extractor    *extractor.RuleExtractor
	Sink         *sink.Workbook
	Ledger       *ledger.File
	Orchestrator *pipeline.Orchestrator
	Reviewer     *review.Reviewer

	state *state.DB
}

// Build constructs every collaborator. The caller must Close the App.
func Build(cfg config.Config, log *logger.Logger) (*App, error) {
	a := &App{Config: cfg}

	completer, err := NewCompleter(cfg, log)
	if err != nil {
		return nil, types.Wrap(types.ErrConfig, err)
	}
	a.Completer = completer

	a.Extractor = extractor.NewRuleExtractor(completer, extractor.Options{
		Rates:    cfg.Rates,
		Language: cfg.RulesLanguage,
		Logger:   log,
	})
	a.Sink = sink.NewWorkbook(cfg.ResultsWorkbook, log)
	a.Ledger = ledger.NewFile(cfg.FailedItemsFile, log)
	a.Reviewer = review.New(completer, a.Sink, cfg.Rates, cfg.RulesLanguage, log)

	transcriber, err := newTranscriber(cfg, log)
	if err != nil {
		return nil, types.Wrap(types.ErrConfig, err)
	}

	proxies := cfg.ProxyURLs
	if len(proxies) == 0 {
		if proxies, err = egress.LoadProxyFile(cfg.ProxiesFile); err != nil {
			return nil, types.Wrap(types.ErrConfig, err)
		}
	}
	pool, err := egress.NewPool(proxies, 5*time.Minute)
	if err != nil {
		return nil, types.Wrap(types.ErrConfig, err)
	}
	log.WithField("proxies", pool.Size()).Info("egress pool ready")

	granularity, err := pipeline.ParseGranularity(cfg.Granularity)
	if err != nil {
		return nil, types.Wrap(types.ErrConfig, err)
	}

	deps := pipeline.Deps{
		Media: media.NewRouter(
			media.NewYouTube(cfg.DataDir, pool, log),
			media.NewLocal(cfg.DataDir, log),
		),
		Transcriber: transcriber,
		Classifier: classifier.New(completer,
			classifier.WithRates(cfg.Rates),
			classifier.WithLanguage(cfg.RulesLanguage)),
		Sink:   a.Sink,
		Ledger: a.Ledger,
		Logger: log,
	}
	if cfg.StateDB != "" {
		db, err := state.Open(cfg.StateDB)
		if err != nil {
			return nil, fmt.Errorf("open run state: %w", err)
		}
		a.state = db
		deps.State = db
	}

	opts := pipeline.DefaultOptions()
	opts.MaxRetries = cfg.MaxRetries
	opts.ItemDelay = cfg.ItemDelay
	opts.Granularity = granularity
	opts.Concurrency = cfg.ClassifyConcurrency
	opts.Sheets = map[types.Kind]string{
		types.KindVideo: cfg.SheetYouTube,
		types.KindAudio: cfg.SheetPatreon,
	}
	opts.Links = pipeline.Links{AudioBase: cfg.AudioLinkBase}

	if a.Orchestrator, err = pipeline.New(deps, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Rules extracts the rule set shared by every item of a run.
func (a *App) Rules(ctx context.Context) (types.RuleSet, error) {
	return a.Extractor.Extract(ctx, a.Config.ArticleURL)
}

// StateStore returns the run-state database, or nil when disabled.
func (a *App) StateStore() *state.DB { return a.state }

func (a *App) Close() error {
	if a.state != nil {
		return a.state.Close()
	}
	return nil
}

// NewCompleter returns the gateway client, or the canned mock when USE_MOCK_LLM is set.
func NewCompleter(cfg config.Config, log *logger.Logger) (llm.Completer, error) {
	if cfg.UseMockLLM {
		log.Warn("USE_MOCK_LLM=true, completions are canned")
		return &llm.Mock{}, nil
	}
	return llm.NewClient(llm.Options{
		GatewayURL: cfg.GatewayURL,
		APIKey:     cfg.OpenAIKey,
		Model:      cfg.Model,
		Logger:     log,
	})
}

func newTranscriber(cfg config.Config, log *logger.Logger) (transcription.Transcriber, error) {
	if cfg.UseMockTranscribe {
		log.Warn("USE_MOCK_TRANSCRIBE=true, transcripts are canned")
		return &transcription.Mock{}, nil
	}
	return transcription.NewClient(transcription.Options{
		BaseURL:  cfg.TranscribeURL,
		APIKey:   cfg.TranscribeKey,
		Model:    cfg.TranscribeModel,
		Language: cfg.TranscribeLanguage,
		Logger:   log,
	})
}
