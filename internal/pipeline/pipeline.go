// Package pipeline drives work items through acquire, transcribe, classify
// and persist with per-item retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"speech-compliance-go/internal/aggregator"
	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/ledger"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/media"
	"speech-compliance-go/internal/retry"
	"speech-compliance-go/internal/sink"
	"speech-compliance-go/internal/state"
	"speech-compliance-go/internal/transcription"
	"speech-compliance-go/internal/types"
)

// Classifier is satisfied by *classifier.Classifier.
type Classifier interface {
	Classify(ctx context.Context, segmentText string, rules types.RuleSet) (types.Outcome, float64, error)
}

// Deps are the collaborators of an Orchestrator. State is optional.
type Deps struct {
	Media       media.Source
	Transcriber transcription.Transcriber
	Classifier  Classifier
	Sink        sink.Sink
	Ledger      ledger.Ledger
	State       state.Store
	Logger      *logger.Logger
}

type Options struct {
	MaxRetries  int
	ItemDelay   time.Duration
	Granularity Granularity
	Concurrency int
	// Sheets maps an item kind to its result sheet.
	Sheets map[types.Kind]string
	Links  Links

	// Backoff and Timer control the wait between attempts; nil means
	// 2^attempt seconds on a real timer.
	Backoff func(attempt int) time.Duration
	Timer   backoff.Timer
	// Sleep waits between items; nil means a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
	// RemoveAsset deletes an asset after its rows are persisted.
	RemoveAsset func(types.AudioAsset) error
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:  3,
		ItemDelay:   5 * time.Second,
		Granularity: GranularitySentence,
		Concurrency: 4,
		Sheets: map[types.Kind]string{
			types.KindVideo: "YouTube",
			types.KindAudio: "Patreon",
		},
	}
}

type Orchestrator struct {
	deps  Deps
	opts  Options
	meter *cost.Meter
	log   *logger.Logger

	// itemMu serializes item lifecycles across Run and direct ProcessItem
	// callers such as the HTTP service.
	itemMu sync.Mutex

	rulesMu sync.Mutex
	bound   *types.RuleSet
}

func New(deps Deps, opts Options) (*Orchestrator, error) {
	switch {
	case deps.Media == nil:
		return nil, errors.New("pipeline: media source is required")
	case deps.Transcriber == nil:
		return nil, errors.New("pipeline: transcriber is required")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case deps.Sink == nil:
		return nil, errors.New("pipeline: result sink is required")
	case deps.Ledger == nil:
		return nil, errors.New("pipeline: failure ledger is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.New()
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Granularity == "" {
		opts.Granularity = GranularitySentence
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.Exponential
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RemoveAsset == nil {
		opts.RemoveAsset = media.Remove
	}
	for kind, name := range DefaultOptions().Sheets {
		if opts.Sheets == nil {
			opts.Sheets = map[types.Kind]string{}
		}
		if opts.Sheets[kind] == "" {
			opts.Sheets[kind] = name
		}
	}
	return &Orchestrator{
		deps:  deps,
		opts:  opts,
		meter: &cost.Meter{},
		log:   deps.Logger.Component("pipeline"),
	}, nil
}

// Meter exposes the running cost of the extraction and every completion call
// made so far.
func (o *Orchestrator) Meter() *cost.Meter { return o.meter }

// BindRules charges the extraction cost of a rule set to the meter, once per
// distinct rule set. Run calls it; long-lived callers call it after extraction.
func (o *Orchestrator) BindRules(rules types.RuleSet) {
	o.rulesMu.Lock()
	defer o.rulesMu.Unlock()
	if o.bound != nil && o.bound.ExtractionCost == rules.ExtractionCost && slices.Equal(o.bound.Rules, rules.Rules) {
		return
	}
	o.bound = &types.RuleSet{Rules: slices.Clone(rules.Rules), ExtractionCost: rules.ExtractionCost}
	o.meter.Charge(rules.ExtractionCost)
}

// SheetFor names the result sheet of an item kind.
func (o *Orchestrator) SheetFor(kind types.Kind) string { return o.opts.Sheets[kind] }

// ProcessItem runs one item to success or retry exhaustion. A failed item is
// recorded in the ledger; the error is reported in the result, never returned.
// Concurrent callers wait their turn: only one item is in flight at a time.
func (o *Orchestrator) ProcessItem(ctx context.Context, item types.WorkItem, rules types.RuleSet) types.ItemResult {
	o.itemMu.Lock()
	defer o.itemMu.Unlock()

	started := o.opts.Now()
	res := types.ItemResult{Item: item}
	log := o.log.WithItem(item)

	policy := retry.Policy{MaxAttempts: o.opts.MaxRetries, Backoff: o.opts.Backoff, Timer: o.opts.Timer}
	attempts, err := retry.Do(ctx, policy, func(attempt int) error {
		alog := log.WithField("attempt", attempt)
		id, n, c, err := o.attempt(ctx, item, rules, alog)
		res.Cost += c
		if err != nil {
			return err
		}
		res.ItemID, res.Violations = id, n
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		log.WithField("attempt", attempt).
			WithField("stage", types.Stage(err)).
			WithField("wait", wait.String()).
			WithField("error", err.Error()).
			Warn("attempt failed, retrying")
	})
	res.Attempts = attempts
	res.DurationMs = o.opts.Now().Sub(started).Milliseconds()

	if err == nil {
		res.Status = types.StatusSucceeded
		log.WithField("violations", res.Violations).
			WithField("attempts", attempts).
			WithField("cost", res.Cost).
			Info("item processed")
		return res
	}

	res.Status = types.StatusFailed
	res.Err = err
	res.Error = err.Error()
	log.WithField("attempts", attempts).
		WithField("stage", types.Stage(err)).
		WithField("error", err.Error()).
		Error("item failed")
	if ctx.Err() != nil {
		// interrupted, not exhausted
		return res
	}
	rec := types.FailureRecord{URL: item.Locator, Error: err.Error(), Timestamp: o.opts.Now().UTC()}
	if lerr := o.deps.Ledger.Record(rec); lerr != nil {
		log.WithField("error", lerr.Error()).Error("could not record failure")
	}
	return res
}

// attempt returns the item id, the violation count and the cost spent.
func (o *Orchestrator) attempt(ctx context.Context, item types.WorkItem, rules types.RuleSet, log *logrus.Entry) (string, int, float64, error) {
	asset, err := o.deps.Media.Acquire(ctx, item)
	if err != nil {
		return "", 0, 0, types.Wrap(types.ErrAcquisition, err)
	}
	log = log.WithField("item_id", asset.ID)

	tr, err := o.deps.Transcriber.Transcribe(ctx, asset.LocalPath)
	if err != nil {
		return "", 0, 0, types.Wrap(types.ErrTranscription, err)
	}

	segs := BuildSegments(tr, o.opts.Granularity)
	log.WithField("segments", len(segs)).Debug("classifying segments")
	outcomes, spent := o.classifyAll(ctx, segs, rules, log)
	if err := ctx.Err(); err != nil {
		return "", 0, spent, err
	}
	rows := shapeRows(item, asset.ID, segs, outcomes, o.opts.Links)

	sheet := o.SheetFor(item.Kind)
	if sheet == "" {
		return "", 0, spent, types.Wrap(types.ErrPersistence, fmt.Errorf("no sheet configured for kind %q", item.Kind))
	}
	if err := o.deps.Sink.EnsureSchema(sheet); err != nil {
		return "", 0, spent, types.Wrap(types.ErrPersistence, err)
	}
	if err := o.deps.Sink.AppendRows(sheet, rows); err != nil {
		return "", 0, spent, types.Wrap(types.ErrPersistence, err)
	}

	if err := o.opts.RemoveAsset(asset); err != nil {
		log.WithField("error", err.Error()).Warn("could not remove audio asset")
	}
	return asset.ID, len(rows), spent, nil
}

// classifyAll fans segments out to a bounded worker pool. A failed segment
// counts as no violation; outcomes stay aligned with segs.
func (o *Orchestrator) classifyAll(ctx context.Context, segs []types.Segment, rules types.RuleSet, log *logrus.Entry) ([]types.Outcome, float64) {
	outcomes := make([]types.Outcome, len(segs))
	var (
		mu    sync.Mutex
		spent float64
		wg    sync.WaitGroup
	)
	jobs := make(chan int)
	for w := 0; w < o.opts.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out, c, err := o.deps.Classifier.Classify(ctx, segs[i].Text, rules)
				o.meter.Add(c)
				mu.Lock()
				spent += c
				mu.Unlock()
				if err != nil {
					log.WithField("segment", segs[i].Index).
						WithField("error", err.Error()).
						Warn("segment classification failed, treating as no violation")
					continue
				}
				outcomes[i] = out
			}
		}()
	}

feed:
	for i, s := range segs {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	return outcomes, spent
}

// Run processes items one at a time, pausing ItemDelay between them. Items a
// previous run completed are skipped when a state store is configured.
func (o *Orchestrator) Run(ctx context.Context, items []types.WorkItem, rules types.RuleSet) aggregator.RunSummary {
	o.BindRules(rules)
	o.log.WithField("items", len(items)).WithField("rules", len(rules.Rules)).Info("run started")

	results := make([]types.ItemResult, 0, len(items))
	processed := 0
	for i, item := range items {
		if ctx.Err() != nil {
			o.log.WithField("remaining", len(items)-i).Warn("run cancelled")
			break
		}
		if o.alreadyDone(ctx, item) {
			o.log.WithItem(item).Info("already processed in an earlier run, skipping")
			results = append(results, types.ItemResult{Item: item, Status: types.StatusSkipped})
			continue
		}
		if processed > 0 && o.opts.ItemDelay > 0 {
			if err := o.opts.Sleep(ctx, o.opts.ItemDelay); err != nil {
				o.log.WithField("remaining", len(items)-i).Warn("run cancelled")
				break
			}
		}
		processed++

		o.log.WithItem(item).WithField("position", fmt.Sprintf("%d/%d", i+1, len(items))).Info("processing item")
		res := o.ProcessItem(ctx, item, rules)
		o.remember(ctx, res)
		results = append(results, res)
	}

	summary := aggregator.Aggregate(results, rules.ExtractionCost)
	o.log.WithField("succeeded", summary.Succeeded).
		WithField("failed", summary.Failed).
		WithField("skipped", summary.Skipped).
		WithField("violations", summary.Violations).
		WithField("total_cost", summary.TotalCost).
		Info("run finished")
	return summary
}

func (o *Orchestrator) alreadyDone(ctx context.Context, item types.WorkItem) bool {
	if o.deps.State == nil {
		return false
	}
	done, err := o.deps.State.Done(ctx, item.Locator)
	if err != nil {
		o.log.WithItem(item).WithField("error", err.Error()).Warn("run state lookup failed")
		return false
	}
	return done
}

func (o *Orchestrator) remember(ctx context.Context, res types.ItemResult) {
	if o.deps.State == nil || ctx.Err() != nil {
		return
	}
	var err error
	if res.Status == types.StatusSucceeded {
		err = o.deps.State.MarkSucceeded(ctx, res)
	} else {
		err = o.deps.State.MarkFailed(ctx, res)
	}
	if err != nil {
		o.log.WithItem(res.Item).WithField("error", err.Error()).Warn("could not record run state")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
