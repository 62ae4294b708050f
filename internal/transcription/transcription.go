package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"speech-compliance-go/internal/logger"
	"speech-compliance-go/internal/retry"
	"speech-compliance-go/internal/types"
)

const defaultBaseURL = "https://api.deepgram.com"

// Transcriber converts a local audio file into a time-aligned transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) (types.Transcript, error)
}

type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	Language     string
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
	HTTPClient   *http.Client
	Logger       *logger.Logger
}

// Client calls a Deepgram-compatible prerecorded /v1/listen endpoint.
type Client struct {
	base         string
	apiKey       string
	model        string
	language     string
	maxRetryTime time.Duration
	http         *http.Client
	log          *logger.Logger
}

var _ Transcriber = (*Client)(nil)

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("transcription api key not set")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = "nova-2-general"
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 10 * time.Minute
	}
	if opts.MaxRetryTime <= 0 {
		opts.MaxRetryTime = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.HTTPTimeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.New()
	}
	return &Client{
		base:         strings.TrimRight(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		model:        opts.Model,
		language:     opts.Language,
		maxRetryTime: opts.MaxRetryTime,
		http:         opts.HTTPClient,
		log:          opts.Logger.Component("transcription"),
	}, nil
}

type listenResponse struct {
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Paragraphs *struct {
					Paragraphs []struct {
						Speaker   int     `json:"speaker"`
						Start     float64 `json:"start"`
						End       float64 `json:"end"`
						Sentences []struct {
							Text  string  `json:"text"`
							Start float64 `json:"start"`
							End   float64 `json:"end"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Speaker    int     `json:"speaker"`
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
	ErrMsg string `json:"err_msg"`
}

// Transcribe uploads the file and maps the response. Every failure wraps
// types.ErrTranscription.
func (c *Client) Transcribe(ctx context.Context, localPath string) (types.Transcript, error) {
	log := c.log.WithField("audio_path", localPath)

	audio, err := os.ReadFile(localPath)
	if err != nil {
		return types.Transcript{}, types.Wrap(types.ErrTranscription, fmt.Errorf("read audio: %w", err))
	}
	log.WithField("bytes", len(audio)).Info("transcribing audio file")

	endpoint := c.base + "/v1/listen?" + c.query().Encode()
	var parsed listenResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
		if err != nil {
			return retry.Permanent(err)
		}
		req.Header.Set("Authorization", "Token "+c.apiKey)
		req.Header.Set("Content-Type", contentType(localPath))
		return c.doJSON(req, &parsed)
	}
	if err := retry.HTTP(ctx, c.maxRetryTime, op); err != nil {
		log.WithError(err).Error("transcription request failed")
		return types.Transcript{}, types.Wrap(types.ErrTranscription, err)
	}

	tr, err := toTranscript(parsed)
	if err != nil {
		return types.Transcript{}, types.Wrap(types.ErrTranscription, err)
	}
	log.WithField("paragraphs", len(tr.Paragraphs)).Info("transcription completed")
	return tr, nil
}

func (c *Client) query() url.Values {
	q := url.Values{}
	q.Set("model", c.model)
	if c.language != "" {
		q.Set("language", c.language)
	}
	q.Set("smart_format", "false")
	q.Set("diarize", "true")
	q.Set("punctuate", "true")
	q.Set("paragraphs", "true")
	q.Set("utterances", "true")
	return q
}

func (c *Client) doJSON(req *http.Request, target any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	if resp.StatusCode >= 400 {
		return retry.Permanent(fmt.Errorf("request rejected %d: %s", resp.StatusCode, string(body)))
	}
	if len(body) == 0 {
		return errors.New("empty body")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return retry.Permanent(fmt.Errorf("json decode error: %v body=%s", err, string(body)))
	}
	return nil
}

func toTranscript(r listenResponse) (types.Transcript, error) {
	if r.Results == nil || len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		if r.ErrMsg != "" {
			return types.Transcript{}, fmt.Errorf("no results: %s", r.ErrMsg)
		}
		return types.Transcript{}, errors.New("no results found in the response")
	}
	alt := r.Results.Channels[0].Alternatives[0]
	if strings.TrimSpace(alt.Transcript) == "" {
		return types.Transcript{}, errors.New("no transcript found in the response")
	}

	tr := types.Transcript{FullText: alt.Transcript}
	if alt.Paragraphs != nil && len(alt.Paragraphs.Paragraphs) > 0 {
		for _, p := range alt.Paragraphs.Paragraphs {
			para := types.Paragraph{Speaker: p.Speaker, Start: p.Start, End: p.End}
			for _, s := range p.Sentences {
				para.Sentences = append(para.Sentences, types.Sentence{Text: s.Text, Start: s.Start, End: s.End})
			}
			tr.Paragraphs = append(tr.Paragraphs, para)
		}
	} else {
		// no paragraph block: one single-sentence paragraph per utterance
		for _, u := range r.Results.Utterances {
			tr.Paragraphs = append(tr.Paragraphs, types.Paragraph{
				Speaker:   u.Speaker,
				Start:     u.Start,
				End:       u.End,
				Sentences: []types.Sentence{{Text: u.Transcript, Start: u.Start, End: u.End}},
			})
		}
	}
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, fmt.Errorf("unusable transcript timing: %w", err)
	}
	return tr, nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	}
	return "application/octet-stream"
}
