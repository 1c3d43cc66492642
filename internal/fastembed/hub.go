package fastembed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultHubEndpoint is the public Hugging Face hub.
const DefaultHubEndpoint = "https://huggingface.co"

const defaultHubRetries = 3

// Hub downloads model artifacts from a Hugging Face compatible hub.
// Requests failing with a network error, 429 or 5xx are retried with
// exponential backoff; other statuses fail at once.
type Hub struct {
	endpoint string
	token    string
	client   *http.Client
	retries  uint64
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRetries sets how many times a failed request is retried. Zero disables
// retries.
func WithRetries(n uint64) HubOption {
	return func(h *Hub) { h.retries = n }
}

// NewHub creates a Hub client. An empty endpoint selects DefaultHubEndpoint.
func NewHub(endpoint, token string, opts ...HubOption) *Hub {
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}
	h := &Hub{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		client:   http.DefaultClient,
		retries:  defaultHubRetries,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, h.retries), ctx)
}

type revisionResponse struct {
	SHA string `json:"sha"`
}

// ResolveRevision returns the commit hash a revision (branch or tag) points to.
func (h *Hub) ResolveRevision(ctx context.Context, repo, revision string) (string, error) {
	u := fmt.Sprintf("%s/api/models/%s/revision/%s", h.endpoint, repo, url.PathEscape(revision))
	resp, err := h.get(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out revisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("hub: decode revision of %s: %w", repo, err)
	}
	if out.SHA == "" {
		return "", fmt.Errorf("hub: revision %s of %s has no commit hash", revision, repo)
	}
	return out.SHA, nil
}

// Download streams one file of repo at commit sha into dst.
func (h *Hub) Download(ctx context.Context, repo, sha, file string, dst io.Writer) error {
	u := fmt.Sprintf("%s/%s/resolve/%s/%s", h.endpoint, repo, sha, file)
	resp, err := h.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("hub: download %s/%s: %w", repo, file, err)
	}
	return nil
}

// get returns a 200 response. Only the request is retried; a body that fails
// mid-stream is the caller's error.
func (h *Hub) get(ctx context.Context, u string) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("hub: create request: %w", err))
		}
		if h.token != "" {
			req.Header.Set("Authorization", "Bearer "+h.token)
		}

		r, err := h.client.Do(req)
		if err != nil {
			return fmt.Errorf("hub: send request: %w", err)
		}
		if r.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 512))
			r.Body.Close()
			err := fmt.Errorf("hub: GET %s returned status %d: %s", u, r.StatusCode, string(body))
			if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= http.StatusInternalServerError {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}
	if err := backoff.Retry(op, h.newBackOff(ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}
