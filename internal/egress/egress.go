// Package egress hands out HTTP clients that change their network identity on
// every call: the next proxy from the pool plus a fresh browser user agent and
// Accept-Language. Media downloads use one client per acquisition attempt so a
// blocked identity is not reused.
package egress

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

type Pool struct {
	mu      sync.Mutex
	proxies []*url.URL
	next    int
	timeout time.Duration
}

// NewPool parses proxy URLs; an empty list means direct connections.
func NewPool(proxies []string, timeout time.Duration) (*Pool, error) {
	p := &Pool{timeout: timeout}
	for _, raw := range proxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy %q needs scheme and host", raw)
		}
		p.proxies = append(p.proxies, u)
	}
	return p, nil
}

// LoadProxyFile reads a JSON array of proxy URLs. A missing file yields no proxies.
func LoadProxyFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode proxy file %s: %w", path, err)
	}
	return out, nil
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// nextProxy rotates round-robin; nil when the pool is empty.
func (p *Pool) nextProxy() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.proxies) == 0 {
		return nil
	}
	u := p.proxies[p.next%len(p.proxies)]
	p.next++
	return u
}

// Identity is what a client presents upstream.
type Identity struct {
	Proxy          *url.URL
	UserAgent      string
	AcceptLanguage string
}

func (p *Pool) NextIdentity() Identity {
	return Identity{
		Proxy:          p.nextProxy(),
		UserAgent:      gofakeit.UserAgent(),
		AcceptLanguage: acceptLanguage(),
	}
}

// Client returns a new client bound to the next identity. Keep-alives are off
// when a proxy is used so each request goes out through the chosen proxy.
func (p *Pool) Client() (*http.Client, Identity) {
	return p.client(false)
}

// OverridingClient is Client for callers whose library stamps its own
// User-Agent; the identity headers replace whatever the request carries.
func (p *Pool) OverridingClient() (*http.Client, Identity) {
	return p.client(true)
}

func (p *Pool) client(override bool) (*http.Client, Identity) {
	id := p.NextIdentity()
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
	if id.Proxy != nil {
		base.Proxy = http.ProxyURL(id.Proxy)
		base.DisableKeepAlives = true
	}
	return &http.Client{
		Transport: &Transport{Base: base, Identity: id, Override: override},
		Timeout:   p.timeout,
	}, id
}

// Transport stamps identity headers onto requests that do not set them, or
// onto every request when Override is set.
type Transport struct {
	Base     http.RoundTripper
	Identity Identity
	Override bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}
	r := req.Clone(req.Context())
	if t.Identity.UserAgent != "" && (t.Override || r.Header.Get("User-Agent") == "") {
		r.Header.Set("User-Agent", t.Identity.UserAgent)
	}
	if t.Identity.AcceptLanguage != "" && (t.Override || r.Header.Get("Accept-Language") == "") {
		r.Header.Set("Accept-Language", t.Identity.AcceptLanguage)
	}
	return t.Base.RoundTrip(r)
}

func acceptLanguage() string {
	return fmt.Sprintf("%s,%s;q=0.9,en;q=0.8", gofakeit.LanguageAbbreviation(), gofakeit.LanguageAbbreviation())
}
