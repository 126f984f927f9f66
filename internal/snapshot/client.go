package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Client uploads drawing snapshots to the object store over its HTTP API.
// Uploads are keyed by round id and overwrite on conflict, so re-running the
// end-of-round save is idempotent.
type Client struct {
	baseURL string
	bucket  string
	http    *fasthttp.Client

	defaultTimeout time.Duration
}

func NewClient(baseURL, bucket string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		bucket:         strings.Trim(bucket, "/"),
		http:           &fasthttp.Client{ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, MaxConnsPerHost: 8},
		defaultTimeout: 30 * time.Second,
	}
}

// Upload stores imageBytes under key. With overwrite set, an existing object
// is replaced.
func (c *Client) Upload(ctx context.Context, key string, imageBytes []byte, overwrite bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPut)
	req.SetRequestURI(c.objectURL(key))
	req.Header.SetContentType("image/png")
	if overwrite {
		req.Header.Set("x-upsert", "true")
	}
	req.SetBody(imageBytes)

	timeout := c.defaultTimeout
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < timeout {
			timeout = rem
		}
	}
	if err := c.http.DoTimeout(req, resp, timeout); err != nil {
		return fmt.Errorf("snapshot upload: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("snapshot upload: status %d", resp.StatusCode())
	}
	return nil
}

// PublicURL returns the stable public address of a stored snapshot.
func (c *Client) PublicURL(key string) string { return c.objectURL(key) }

func (c *Client) objectURL(key string) string {
	return c.baseURL + "/" + c.bucket + "/" + strings.TrimLeft(key, "/")
}
