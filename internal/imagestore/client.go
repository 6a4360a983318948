package imagestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client deletes images from the external image storage over its HTTP
// API. Only URLs that point into this storage are touched; foreign
// URLs are skipped.
type Client struct {
	baseURL    string
	origin     string
	token      string
	strict     bool
	httpClient *http.Client
}

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Strict makes a failed deletion fail the whole call instead of
	// being logged and skipped.
	Strict bool
}

func NewClient(opts Options) (*Client, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("missing image storage base URL")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid image storage base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid image storage base URL: %s", base)
	}
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("missing image storage API token")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		origin:     u.Scheme + "://" + u.Host,
		token:      strings.TrimSpace(opts.Token),
		strict:     opts.Strict,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// DeleteImages removes the images behind the given URLs. 404 counts as
// success: the image is gone either way.
func (c *Client) DeleteImages(ctx context.Context, urls []string) error {
	seen := map[string]struct{}{}

	for _, rawURL := range urls {
		name, ok := c.imageName(rawURL)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		if err := c.deleteOne(ctx, name); err != nil {
			if c.strict {
				return err
			}
			log.Printf("imagestore: delete %s: %v", name, err)
		}
	}
	return nil
}

func (c *Client) deleteOne(ctx context.Context, name string) error {
	endpoint := c.baseURL + "/api/images/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("image storage error: status=%d body=%s", resp.StatusCode, string(body))
}

// imageName extracts the stored file name from an image URL. Absolute
// URLs must point at the storage origin. Anything that does not look
// like a plain file name is rejected.
func (c *Client) imageName(rawURL string) (string, bool) {
	candidate := strings.TrimSpace(rawURL)
	if candidate == "" {
		return "", false
	}

	if strings.Contains(candidate, "://") {
		u, err := url.Parse(candidate)
		if err != nil {
			return "", false
		}
		if u.Scheme+"://"+u.Host != c.origin {
			return "", false
		}
		candidate = u.Path
	}

	switch {
	case strings.HasPrefix(candidate, "/api/images/"):
		candidate = strings.TrimPrefix(candidate, "/api/images/")
	case strings.HasPrefix(candidate, "/images/"):
		candidate = strings.TrimPrefix(candidate, "/images/")
	case strings.HasPrefix(candidate, "images/"):
		candidate = strings.TrimPrefix(candidate, "images/")
	}

	name, err := url.PathUnescape(candidate)
	if err != nil {
		return "", false
	}
	name = strings.Trim(name, "/")
	if name == "" || strings.Contains(name, "/") || strings.Contains(name, "\\") || strings.Contains(name, "..") {
		return "", false
	}
	return name, true
}
