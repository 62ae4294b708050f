package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"speech-compliance-go/internal/actionable"
	"speech-compliance-go/internal/aggregator"
	"speech-compliance-go/internal/app"
	"speech-compliance-go/internal/config"
	"speech-compliance-go/internal/ledger"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/review"
	"speech-compliance-go/internal/sink"
	"speech-compliance-go/internal/types"
	"speech-compliance-go/internal/worklist"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, types.ErrConfig) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return nil
	}
	switch args[0] {
	case "run":
		return runScan(ctx, args[1:], out)
	case "review":
		return runReview(ctx, args[1:], out)
	case "failures":
		return runFailures(args[1:], out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	}
	printUsage(out)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "scanner: check spoken media against legal rules")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  run       process the worklist and append violations to the results workbook")
	fmt.Fprintln(out, "  review    second-opinion pass copying confirmed violations to the reviewed sheet")
	fmt.Fprintln(out, "  failures  print the failed items ledger")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is read from the environment and an optional .env file.")
}

func runScan(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(out)
	worklistPath := fs.String("worklist", "", "worklist file (.txt, .json, .xlsx); overrides WORKLIST_PATH")
	limit := fs.Int("limit", 0, "process at most this many items (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *worklistPath != "" {
		cfg.WorklistPath = *worklistPath
	}
	if err := cfg.Validate(config.ModeRun); err != nil {
		return err
	}

	runID := uuid.New().String()
	log := logger.New().With("run_id", runID)

	items, err := worklist.Load(cfg.WorklistPath)
	if err != nil {
		return fmt.Errorf("load worklist: %w", err)
	}
	if *limit > 0 && *limit < len(items) {
		items = items[:*limit]
	}
	log.WithField("worklist", cfg.WorklistPath).WithField("items", len(items)).Info("worklist loaded")

	a, err := app.Build(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	rules, err := a.Rules(ctx)
	if err != nil {
		log.WithField("stage", types.Stage(err)).WithField("error", err.Error()).Error("rule extraction failed")
		return err
	}
	log.WithField("rules", len(rules.Rules)).WithField("cost", rules.ExtractionCost).Info("rules extracted")

	summary := a.Orchestrator.Run(ctx, items, rules)
	summary.RunID = runID
	rep := report{Summary: summary, Actions: actionable.Generate(summary)}
	if err := writeJSON(out, rep); err != nil {
		return err
	}
	return ctx.Err()
}

func runReview(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("review", flag.ContinueOnError)
	fs.SetOutput(out)
	sheet := fs.String("sheet", "", "sheet to review (default SHEET_NAME_PATREON)")
	into := fs.String("into", "", "sheet receiving confirmed rows (default SHEET_NAME_REVIEWED)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *sheet == "" {
		*sheet = cfg.SheetPatreon
	}
	if *into != "" {
		cfg.SheetReviewed = *into
	}
	if err := cfg.Validate(config.ModeReview); err != nil {
		return err
	}
	if *sheet == cfg.SheetReviewed {
		return types.Wrap(types.ErrConfig, errors.New("review source and target sheet must differ"))
	}

	log := logger.New()
	completer, err := app.NewCompleter(cfg, log)
	if err != nil {
		return types.Wrap(types.ErrConfig, err)
	}
	reviewer := review.New(completer, sink.NewWorkbook(cfg.ResultsWorkbook, log), cfg.Rates, cfg.RulesLanguage, log)
	sum, err := reviewer.Review(ctx, *sheet, cfg.SheetReviewed)
	if err != nil {
		return err
	}
	return writeJSON(out, sum)
}

func runFailures(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("failures", flag.ContinueOnError)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	records, err := ledger.NewFile(cfg.FailedItemsFile, logger.Discard()).List()
	if err != nil {
		return err
	}
	return writeJSON(out, records)
}

type report struct {
	Summary aggregator.RunSummary   `json:"summary"`
	Actions []actionable.ActionCard `json:"actions"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
