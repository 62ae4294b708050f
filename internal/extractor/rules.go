package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"speech-compliance-go/internal/cost"
	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

const (
	summarySystemPrompt = "You are a legal assistant."
	summaryUserPrompt   = "Summarize the main legal principles from this article in bullet points in %s:\n\n%s"
)

// RuleExtractor turns a reference article into the run's rule set.
type RuleExtractor struct {
	http      *http.Client
	completer llm.Completer
	rates     cost.Rates
	language  string
	log       *logger.Logger
}

type Options struct {
	HTTPClient *http.Client
	Rates      cost.Rates
	// Language the rules should be written in; it should match the spoken language.
	Language string
	Logger   *logger.Logger
}

func NewRuleExtractor(completer llm.Completer, opts Options) *RuleExtractor {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Rates == (cost.Rates{}) {
		opts.Rates = cost.DefaultRates
	}
	if opts.Language == "" {
		opts.Language = "Czech"
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	return &RuleExtractor{
		http:      opts.HTTPClient,
		completer: completer,
		rates:     opts.Rates,
		language:  opts.Language,
		log:       opts.Logger.Component("rules"),
	}
}

// Extract fetches documentURL and summarizes it into rules. Failures wrap
// types.ErrContentExtraction or types.ErrSummarization and are fatal to a run.
func (e *RuleExtractor) Extract(ctx context.Context, documentURL string) (types.RuleSet, error) {
	log := e.log.WithField("article_url", documentURL)

	content, err := e.fetchArticleContent(ctx, documentURL)
	if err != nil {
		log.WithError(err).Error("article content extraction failed")
		return types.RuleSet{}, types.Wrap(types.ErrContentExtraction, err)
	}
	log.WithField("content_len", len(content)).Info("article content extracted")

	out, err := e.completer.Complete(ctx, summarySystemPrompt, fmt.Sprintf(summaryUserPrompt, e.language, content))
	if err != nil {
		return types.RuleSet{}, types.Wrap(types.ErrSummarization, err)
	}
	rules := SplitRules(out.Text)
	if len(rules) == 0 {
		return types.RuleSet{}, types.Wrap(types.ErrSummarization, errors.New("model returned no rules"))
	}

	rs := types.RuleSet{Rules: rules, ExtractionCost: out.Cost(e.rates)}
	log.WithField("rules", len(rs.Rules)).WithField("cost", rs.ExtractionCost).Info("legal rules extracted")
	return rs, nil
}

func (e *RuleExtractor) fetchArticleContent(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("article fetch status %d: %s", resp.StatusCode, string(b))
	}
	return ArticleText(resp.Body)
}

// ArticleText joins the text of every <p> under <body> with blank lines.
func ArticleText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse article html: %w", err)
	}
	var parts []string
	doc.Find("body p").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return "", errors.New("no paragraph text found")
	}
	return strings.Join(parts, "\n\n"), nil
}

// SplitRules splits a summary into trimmed, non-empty lines.
func SplitRules(summary string) []string {
	var rules []string
	for _, line := range strings.Split(summary, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			rules = append(rules, l)
		}
	}
	return rules
}
