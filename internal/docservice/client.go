// Package docservice is the HTTP adapter for the external document server:
// format conversion, service commands, and content downloads.
package docservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collabdocs/trackd/internal/fileutil"
)

type ClientOptions struct {
	// SiteURL is the document server base URL; ConverterPath and
	// CommandPath are resolved against it.
	SiteURL       string
	ConverterPath string
	CommandPath   string
	HTTPClient    *http.Client
	Tokens        *TokenManager
	PollInterval  time.Duration
	MaxBodyBytes  int64
}

type Client struct {
	converterURL string
	commandURL   string
	httpClient   *http.Client
	tokens       *TokenManager
	pollInterval time.Duration
	maxBodyBytes int64
}

func NewClient(opts ClientOptions) *Client {
	siteURL := strings.TrimRight(strings.TrimSpace(opts.SiteURL), "/") + "/"
	converterPath := strings.TrimLeft(opts.ConverterPath, "/")
	if converterPath == "" {
		converterPath = "ConvertService.ashx"
	}
	commandPath := strings.TrimLeft(opts.CommandPath, "/")
	if commandPath == "" {
		commandPath = "coauthoring/CommandService.ashx"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxBodyBytes := opts.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 26
	}
	return &Client{
		converterURL: siteURL + converterPath,
		commandURL:   siteURL + commandPath,
		httpClient:   httpClient,
		tokens:       opts.Tokens,
		pollInterval: pollInterval,
		maxBodyBytes: maxBodyBytes,
	}
}

// ConvertResult is one conversion round trip's outcome. URI is set only
// when Done is true.
type ConvertResult struct {
	URI     string
	Percent int
	Done    bool
}

type convertRequest struct {
	Async      bool   `json:"async"`
	URL        string `json:"url"`
	OutputType string `json:"outputtype"`
	FileType   string `json:"filetype"`
	Title      string `json:"title"`
	Key        string `json:"key"`
	Token      string `json:"token,omitempty"`
}

type convertResponse struct {
	Error      int     `json:"error"`
	EndConvert bool    `json:"endConvert"`
	Percent    float64 `json:"percent"`
	FileURL    string  `json:"fileUrl"`
}

// Convert issues one conversion request. The returned key is normalized
// when the caller has not already done so. A non-zero service error code is
// surfaced as *ConversionError and must not be retried.
func (c *Client) Convert(ctx context.Context, uri, fromExt, toExt, key string, async bool) (ConvertResult, error) {
	if fromExt == "" {
		fromExt = fileutil.Ext(uri)
	}
	title := fileutil.FileName(uri)
	if title == "" {
		title = uuid.NewString()
	}
	if key == "" {
		key = uri
	}
	req := convertRequest{
		Async:      async,
		URL:        uri,
		OutputType: strings.TrimPrefix(toExt, "."),
		FileType:   strings.TrimPrefix(fromExt, "."),
		Title:      title,
		Key:        NormalizeKey(key),
	}

	var resp convertResponse
	if err := c.post(ctx, c.converterURL, &req, &resp); err != nil {
		return ConvertResult{}, err
	}
	if resp.Error != 0 {
		return ConvertResult{}, &ConversionError{Code: resp.Error}
	}
	percent := int(resp.Percent)
	if resp.EndConvert {
		if resp.FileURL == "" {
			return ConvertResult{}, ErrEmptyResult
		}
		return ConvertResult{URI: resp.FileURL, Percent: 100, Done: true}, nil
	}
	if percent >= 100 {
		percent = 99
	}
	return ConvertResult{Percent: percent, Done: false}, nil
}

// ConvertSync polls Convert until the service reports completion or an
// error. It is used when a save callback arrives with a foreign extension
// and the stored format must be restored before committing.
func (c *Client) ConvertSync(ctx context.Context, uri, fromExt, toExt, key string) (string, error) {
	for {
		result, err := c.Convert(ctx, uri, fromExt, toExt, key, false)
		if err != nil {
			return "", err
		}
		if result.Done {
			return result.URI, nil
		}
		if err := sleepContext(ctx, c.pollInterval); err != nil {
			return "", err
		}
	}
}

type commandRequest struct {
	C     string `json:"c"`
	Key   string `json:"key"`
	Token string `json:"token,omitempty"`
}

type commandResponse struct {
	Error int `json:"error"`
}

// Command sends a service command (e.g. "forcesave") for a revision key.
func (c *Client) Command(ctx context.Context, method, key string) error {
	req := commandRequest{C: method, Key: NormalizeKey(key)}
	var resp commandResponse
	if err := c.post(ctx, c.commandURL, &req, &resp); err != nil {
		return err
	}
	if resp.Error != 0 {
		return fmt.Errorf("command %q failed: error = %d", method, resp.Error)
	}
	return nil
}

// Download fetches document content from the given URL.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download %s: status %d", uri, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
}

func (c *Client) post(ctx context.Context, uri string, payload, out any) error {
	headers := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if c.tokens != nil {
		signedHeader, err := c.tokens.SignForURL(uri, payload)
		if err != nil {
			return err
		}
		name, prefix := c.tokens.HeaderName()
		headers[name] = prefix + signedHeader
		if err := c.attachBodyToken(payload); err != nil {
			return err
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTimeout(err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("document server %s: status %d", uri, resp.StatusCode)
	}
	return json.Unmarshal(respBody, out)
}

func (c *Client) attachBodyToken(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	delete(fields, "token")
	token, err := c.tokens.Sign(fields)
	if err != nil {
		return err
	}
	switch typed := payload.(type) {
	case *convertRequest:
		typed.Token = token
	case *commandRequest:
		typed.Token = token
	}
	return nil
}

func wrapTimeout(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
	}
	return err
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
