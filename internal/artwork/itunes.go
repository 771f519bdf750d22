// Package artwork fetches album art from the iTunes Search API when the
// broadcast does not deliver its own image.
package artwork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	// Broadcast and lookup-service images arrive in any of these formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
)

// ErrNoArt means the lookup service had no artwork for the query. It is an
// expected outcome, not a failure.
var ErrNoArt = errors.New("no artwork found")

const (
	defaultBaseURL = "https://itunes.apple.com"
	userAgent      = "SDR-Boombox/2.0"
	fetchTimeout   = 5 * time.Second
	maxBodyBytes   = 4 << 20
)

// Fetcher resolves a free-form query ("artist title" or a station label) into
// a decoded image.
type Fetcher interface {
	Fetch(ctx context.Context, query string) (image.Image, error)
}

// Client implements Fetcher against the iTunes Search API.
type Client struct {
	client  *http.Client
	log     hclog.Logger
	baseURL string
}

// New builds a Client; a nil http.Client falls back to http.DefaultClient.
func New(client *http.Client, log hclog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Client{client: client, log: log, baseURL: defaultBaseURL}
}

// NewForBase is New with an overridden API endpoint, used by tests.
func NewForBase(client *http.Client, log hclog.Logger, baseURL string) *Client {
	c := New(client, log)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

type searchResponse struct {
	Results []struct {
		ArtworkURL100 string `json:"artworkUrl100"`
	} `json:"results"`
}

// Fetch queries the search API and downloads the first result's artwork,
// upgraded from the 100x100 thumbnail to the 300x300 rendition.
func (c *Client) Fetch(ctx context.Context, query string) (image.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/search?term=%s&entity=song&limit=1", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artwork search failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artwork search status %d", resp.StatusCode)
	}

	var sr searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&sr); err != nil {
		return nil, fmt.Errorf("artwork search parse: %w", err)
	}
	if len(sr.Results) == 0 || strings.TrimSpace(sr.Results[0].ArtworkURL100) == "" {
		return nil, ErrNoArt
	}

	artURL := strings.Replace(sr.Results[0].ArtworkURL100, "100x100bb.jpg", "300x300bb.jpg", 1)
	return c.download(ctx, artURL)
}

func (c *Client) download(ctx context.Context, artURL string) (image.Image, error) {
	cctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodGet, artURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artwork download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("artwork download status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("artwork decode: %w", err)
	}
	c.log.Debug("artwork retrieved", "url", artURL)
	return img, nil
}
