package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/types"
)

type Config struct {
	OpenAIKey  string
	GatewayURL string
	Model      string

	TranscribeKey      string
	TranscribeURL      string
	TranscribeModel    string
	TranscribeLanguage string

	RulesLanguage string
	ArticleURL    string
	WorklistPath  string

	ResultsWorkbook     string
	SheetYouTube        string
	SheetPatreon        string
	SheetReviewed       string
	DataDir             string
	FailedItemsFile     string
	StateDB             string
	ProxiesFile         string
	ProxyURLs           []string
	AudioLinkBase       string
	MaxRetries          int
	ItemDelay           time.Duration
	Granularity         string
	ClassifyConcurrency int
	Rates               cost.Rates

	UseMockLLM        bool
	UseMockTranscribe bool
	Port              string
}

// Load reads .env (when present) and the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function; malformed numbers and
// durations are reported together as ErrConfig.
func FromEnv(getenv func(string) string) (Config, error) {
	p := parser{getenv: getenv}
	c := Config{
		OpenAIKey:  getenv("OPENAI_API_KEY"),
		GatewayURL: p.text("LLM_GATEWAY_URL", "https://api.openai.com/v1/chat/completions"),
		Model:      p.text("LLM_MODEL", "gpt-4o"),

		TranscribeKey:      getenv("DEEPGRAM_API_KEY"),
		TranscribeURL:      p.text("TRANSCRIBE_URL", "https://api.deepgram.com"),
		TranscribeModel:    p.text("TRANSCRIBE_MODEL", "nova-2-general"),
		TranscribeLanguage: p.text("TRANSCRIBE_LANGUAGE", "cs"),

		RulesLanguage: p.text("RULES_LANGUAGE", "Czech"),
		ArticleURL:    getenv("ARTICLE_URL"),
		WorklistPath:  p.text("WORKLIST_PATH", "urls.txt"),

		ResultsWorkbook: p.text("RESULTS_WORKBOOK", "results.xlsx"),
		SheetYouTube:    p.text("SHEET_NAME_YOUTUBE", "YouTube"),
		SheetPatreon:    p.text("SHEET_NAME_PATREON", "Patreon"),
		SheetReviewed:   p.text("SHEET_NAME_REVIEWED", "Reviewed"),
		DataDir:         p.text("DATA_DIR", "data"),
		FailedItemsFile: p.text("FAILED_ITEMS_FILE", "failed_videos.json"),
		StateDB:         getenv("STATE_DB"),
		ProxiesFile:     p.text("PROXIES_FILE", "proxies.json"),
		ProxyURLs:       p.items("PROXY_URLS"),
		AudioLinkBase:   getenv("AUDIO_LINK_BASE"),

		MaxRetries:          p.integer("MAX_RETRIES", 3),
		ItemDelay:           p.dur("ITEM_DELAY", 5*time.Second),
		Granularity:         p.text("SEGMENT_GRANULARITY", "sentence"),
		ClassifyConcurrency: p.integer("CLASSIFY_CONCURRENCY", 4),
		Rates: cost.Rates{
			InputPer1K:  p.number("INPUT_COST_PER_1K", cost.DefaultRates.InputPer1K),
			OutputPer1K: p.number("OUTPUT_COST_PER_1K", cost.DefaultRates.OutputPer1K),
		},

		UseMockLLM:        p.flag("USE_MOCK_LLM"),
		UseMockTranscribe: p.flag("USE_MOCK_TRANSCRIBE"),
		Port:              p.text("PORT", "8080"),
	}
	if len(p.errs) > 0 {
		return c, types.Wrap(types.ErrConfig, errors.Join(p.errs...))
	}
	return c, nil
}

// Mode selects which settings Validate requires.
type Mode int

const (
	ModeRun Mode = iota
	ModeReview
	ModeServe
)

// MaxRetriesLimit bounds MAX_RETRIES; the last waits are already an hour.
const MaxRetriesLimit = 20

func (c Config) Validate(mode Mode) error {
	var errs []error
	if !c.UseMockLLM {
		if c.OpenAIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required (or USE_MOCK_LLM=true)"))
		}
		if c.GatewayURL == "" {
			errs = append(errs, errors.New("LLM_GATEWAY_URL is empty"))
		}
	}
	if c.ResultsWorkbook == "" {
		errs = append(errs, errors.New("RESULTS_WORKBOOK is empty"))
	}
	if mode == ModeRun || mode == ModeServe {
		if c.ArticleURL == "" {
			errs = append(errs, errors.New("ARTICLE_URL is required"))
		}
		if !c.UseMockTranscribe && c.TranscribeKey == "" {
			errs = append(errs, errors.New("DEEPGRAM_API_KEY is required (or USE_MOCK_TRANSCRIBE=true)"))
		}
		if c.MaxRetries < 1 || c.MaxRetries > MaxRetriesLimit {
			errs = append(errs, fmt.Errorf("MAX_RETRIES must be between 1 and %d, got %d", MaxRetriesLimit, c.MaxRetries))
		}
		if c.ClassifyConcurrency < 1 {
			errs = append(errs, fmt.Errorf("CLASSIFY_CONCURRENCY must be at least 1, got %d", c.ClassifyConcurrency))
		}
		if c.ItemDelay < 0 {
			errs = append(errs, fmt.Errorf("ITEM_DELAY must not be negative"))
		}
		if c.SheetYouTube == "" || c.SheetPatreon == "" {
			errs = append(errs, errors.New("sheet names must not be empty"))
		}
	}
	if mode == ModeRun && c.WorklistPath == "" {
		errs = append(errs, errors.New("WORKLIST_PATH is required"))
	}
	if mode == ModeReview && c.SheetReviewed == "" {
		errs = append(errs, errors.New("SHEET_NAME_REVIEWED is empty"))
	}
	if len(errs) > 0 {
		return types.Wrap(types.ErrConfig, errors.Join(errs...))
	}
	return nil
}

type parser struct {
	getenv func(string) string
	errs   []error
}

func (p *parser) text(k, def string) string {
	if v := strings.TrimSpace(p.getenv(k)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(k string, def int) int {
	v := strings.TrimSpace(p.getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return def
	}
	return n
}

func (p *parser) number(k string, def float64) float64 {
	v := strings.TrimSpace(p.getenv(k))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", k, v))
		return def
	}
	return f
}

// dur accepts Go durations ("1500ms") or plain seconds ("5").
func (p *parser) dur(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(k))
	if v == "" {
		return def
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", k, v))
		return def
	}
	return d
}

func (p *parser) flag(k string) bool {
	switch strings.ToLower(strings.TrimSpace(p.getenv(k))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (p *parser) items(k string) []string {
	var out []string
	for _, s := range strings.Split(p.getenv(k), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
