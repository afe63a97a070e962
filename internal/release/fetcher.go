// Package release looks up published release notes for the deployed project.
package release

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"
	"github.com/yz4230/selfupdate/internal/entity"
	"github.com/yz4230/selfupdate/internal/utils"
)

const DefaultTimeout = 15 * time.Second

type Fetcher struct {
	owner      string
	name       string
	token      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

type Option func(*Fetcher)

func WithToken(token string) Option {
	return func(f *Fetcher) { f.token = strings.TrimSpace(token) }
}

// WithBaseURL points the fetcher at a GitHub Enterprise or test server.
func WithBaseURL(base string) Option {
	return func(f *Fetcher) { f.baseURL = strings.TrimSpace(base) }
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = c }
}

func WithLogger(log zerolog.Logger) Option {
	return func(f *Fetcher) { f.log = log }
}

// NewFetcher creates a Fetcher for repo in owner/name form. An empty or
// malformed repo yields a fetcher that never finds a release.
func NewFetcher(repo string, opts ...Option) *Fetcher {
	f := &Fetcher{timeout: DefaultTimeout, log: zerolog.Nop()}
	if owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/"); ok &&
		owner != "" && name != "" && !strings.Contains(name, "/") {
		f.owner, f.name = owner, name
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Configured() bool { return f.owner != "" }

func (f *Fetcher) client() (*github.Client, error) {
	httpClient := f.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	c := github.NewClient(httpClient)
	if f.token != "" {
		c = c.WithAuthToken(f.token)
	}
	if f.baseURL != "" {
		u, err := url.Parse(utils.EnsureSuffix(f.baseURL, "/"))
		if err != nil {
			return nil, err
		}
		c.BaseURL = u
	}
	return c, nil
}

// Latest returns the latest published release, or nil when there is none or
// it cannot be read.
func (f *Fetcher) Latest(ctx context.Context) *entity.Release {
	if !f.Configured() {
		return nil
	}
	c, err := f.client()
	if err != nil {
		f.log.Warn().Err(err).Str("api_url", f.baseURL).Msg("invalid release api url")
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	rel, resp, err := c.Repositories.GetLatestRelease(ctx, f.owner, f.name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil {
			f.log.Warn().Int("status", errResp.Response.StatusCode).Str("repo", f.owner+"/"+f.name).Msg("release api error")
		} else {
			f.log.Warn().Err(err).Str("repo", f.owner+"/"+f.name).Msg("release lookup failed")
		}
		return nil
	}
	if rel == nil {
		return nil
	}

	out := &entity.Release{
		Tag:  strings.TrimSpace(rel.GetTagName()),
		Name: strings.TrimSpace(rel.GetName()),
		Body: strings.TrimSpace(rel.GetBody()),
		URL:  strings.TrimSpace(rel.GetHTMLURL()),
	}
	if ts := rel.GetPublishedAt(); !ts.IsZero() {
		out.PublishedAt = ts.UTC().Format(time.RFC3339)
	}
	return out
}
