package predict

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrUpstream marks prediction/similarity endpoint failures. Callers treat it
// as non-fatal: a missed checkpoint is skipped, not retried forever.
var ErrUpstream = errors.New("prediction upstream unavailable")

// Prediction is the model's best single-word label for a drawing.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type imageInput struct {
	ImageID    string `json:"image_id"`
	Base64Data string `json:"base64_data"`
	Format     string `json:"format"`
}

type predictRequest struct {
	Images []imageInput `json:"images"`
	TopK   int          `json:"top_k"`
}

type predictResponse struct {
	Results []struct {
		Predictions []Prediction `json:"predictions"`
	} `json:"results"`
}

type compareRequest struct {
	Word1 string `json:"word1"`
	Word2 string `json:"word2"`
}

type compareResponse struct {
	Similarity float64 `json:"similarity"`
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 15 * time.Second,
		retryMax:       2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict submits a PNG drawing and returns the model's top label.
func (c *Client) Predict(ctx context.Context, png []byte) (*Prediction, error) {
	req := predictRequest{
		Images: []imageInput{{
			ImageID:    "snapshot",
			Base64Data: base64.StdEncoding.EncodeToString(png),
			Format:     "image/png",
		}},
		TopK: 1,
	}
	var resp predictResponse
	if err := c.doJSON(ctx, "/predict", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Predictions) == 0 {
		return nil, fmt.Errorf("%w: empty prediction result", ErrUpstream)
	}
	p := resp.Results[0].Predictions[0]
	return &p, nil
}

// Similarity returns the semantic closeness of two words in [0,1].
func (c *Client) Similarity(ctx context.Context, wordA, wordB string) (float64, error) {
	var resp compareResponse
	if err := c.doJSON(ctx, "/compare", compareRequest{Word1: wordA, Word2: wordB}, &resp); err != nil {
		return 0, err
	}
	if resp.Similarity < 0 || resp.Similarity > 1 {
		return 0, fmt.Errorf("%w: similarity %v out of range", ErrUpstream, resp.Similarity)
	}
	return resp.Similarity, nil
}

func (c *Client) doJSON(ctx context.Context, path string, in, out any) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req.SetBody(payload)

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		timeout := c.defaultTimeout
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem < timeout {
				timeout = rem
			}
		}
		lastErr = c.http.DoTimeout(req, resp, timeout)
		if lastErr == nil {
			if resp.StatusCode() >= 500 {
				lastErr = fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
				continue
			}
			break
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, lastErr)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode())
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
		}
	}
	return nil
}
