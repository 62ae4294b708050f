package extractor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"speech-compliance-go/internal/llm"
	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/types"
)

const articleHTML = `<html><head><title>RS2018</title></head><body>
<nav><p>Menu</p></nav>
<div class="content">
  <p>Investment recommendations must be fair.</p>
  <p>   </p>
  <p>No one may promise a guaranteed return.</p>
</div>
</body></html>`

func serve(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractBuildsRuleSet(t *testing.T) {
	srv := serve(t, articleHTML, http.StatusOK)

	var gotUser string
	mock := &llm.Mock{Respond: func(system, user string) (string, error) {
		gotUser = user
		return "- Rule one\n\n  - Rule two  \n", nil
	}}
	rs, err := NewRuleExtractor(mock, Options{Logger: logger.Discard()}).Extract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if want := []string{"- Rule one", "- Rule two"}; !reflect.DeepEqual(rs.Rules, want) {
		t.Fatalf("rules = %q, want %q", rs.Rules, want)
	}
	if rs.ExtractionCost <= 0 {
		t.Fatalf("cost = %v", rs.ExtractionCost)
	}
	if !strings.Contains(gotUser, "Menu\n\nInvestment recommendations must be fair.\n\nNo one may promise a guaranteed return.") {
		t.Fatalf("article text not passed through:\n%s", gotUser)
	}
	if !strings.Contains(gotUser, "in Czech") {
		t.Fatalf("default language missing from prompt:\n%s", gotUser)
	}
}

func TestExtractNoContent(t *testing.T) {
	srv := serve(t, `<html><body><div>nothing here</div></body></html>`, http.StatusOK)
	_, err := NewRuleExtractor(&llm.Mock{}, Options{Logger: logger.Discard()}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrContentExtraction) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractHTTPError(t *testing.T) {
	srv := serve(t, "gone", http.StatusNotFound)
	_, err := NewRuleExtractor(&llm.Mock{}, Options{Logger: logger.Discard()}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrContentExtraction) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractEmptySummary(t *testing.T) {
	srv := serve(t, articleHTML, http.StatusOK)
	mock := &llm.Mock{Respond: func(string, string) (string, error) { return " \n \n", nil }}
	_, err := NewRuleExtractor(mock, Options{Logger: logger.Discard()}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrSummarization) {
		t.Fatalf("err = %v", err)
	}
}

func TestExtractCompletionFailure(t *testing.T) {
	srv := serve(t, articleHTML, http.StatusOK)
	mock := &llm.Mock{Respond: func(string, string) (string, error) { return "", errors.New("quota") }}
	_, err := NewRuleExtractor(mock, Options{Logger: logger.Discard()}).Extract(context.Background(), srv.URL)
	if !errors.Is(err, types.ErrSummarization) {
		t.Fatalf("err = %v", err)
	}
}
