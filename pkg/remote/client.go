package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// bundleContentType is the media type of an encoded bundle.
const bundleContentType = "application/x-grit-bundle"

// bundlePathSuffix is appended to HTTP remote URLs that do not already
// name a bundle endpoint.
const bundlePathSuffix = "/repo.bundle"

// responseLimitBundle caps how much of a fetch response is read.
const responseLimitBundle = 256 << 20

// Transport moves bundles between the local repository and a remote.
type Transport interface {
	// FetchBundle downloads the remote's current bundle.
	FetchBundle(ctx context.Context) (*Bundle, error)
	// PushBundle uploads a bundle and returns the receiver's report.
	PushBundle(ctx context.Context, b *Bundle) (*PushReport, error)
}

// NewTransport selects a transport for a remote URL: http/https URLs get
// the HTTP transport, everything else is treated as a filesystem path.
func NewTransport(rawURL string) (Transport, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("remote URL is required")
	}
	if strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://") {
		return NewHTTPTransport(rawURL, TransportOptions{})
	}
	return NewFileTransport(rawURL)
}

// TransportOptions configures the HTTP transport. Zero-value fields get
// defaults (60s timeout, 3 attempts).
type TransportOptions struct {
	Timeout     time.Duration
	MaxAttempts int
}

// HTTPTransport speaks the bundle protocol over HTTP.
//
// Auth resolution order:
//  1. GRIT_TOKEN (Bearer)
//  2. GRIT_USERNAME + GRIT_PASSWORD (Basic)
//  3. URL userinfo (Basic)
type HTTPTransport struct {
	bundleURL   string
	httpClient  *http.Client
	token       string
	user        string
	pass        string
	maxAttempts int
}

// NewHTTPTransport parses and normalizes the remote URL. URLs that do not
// already end in a bundle path get "/repo.bundle" appended.
func NewHTTPTransport(rawURL string, opts TransportOptions) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse remote URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote URL must include scheme and host")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}

	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
		u.User = nil
	}
	token := strings.TrimSpace(os.Getenv("GRIT_TOKEN"))
	if envUser := strings.TrimSpace(os.Getenv("GRIT_USERNAME")); token == "" && envUser != "" {
		user = envUser
		pass = os.Getenv("GRIT_PASSWORD")
	}

	u.Path = strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(u.Path, ".bundle") {
		u.Path += bundlePathSuffix
	}
	u.RawQuery = ""
	u.Fragment = ""

	return &HTTPTransport{
		bundleURL:   u.String(),
		httpClient:  &http.Client{Timeout: opts.Timeout},
		token:       token,
		user:        user,
		pass:        pass,
		maxAttempts: opts.MaxAttempts,
	}, nil
}

// URL returns the normalized bundle endpoint.
func (t *HTTPTransport) URL() string {
	return t.bundleURL
}

// FetchBundle downloads and decodes the remote bundle.
func (t *HTTPTransport) FetchBundle(ctx context.Context) (*Bundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.bundleURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", bundleContentType)
	req.Header.Set("Accept-Encoding", "zstd")
	t.applyAuth(req)

	resp, err := retryDo(t.httpClient, req, t.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimitBundle))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, httpStatusError(req, resp.StatusCode, body)
	}

	if isZstdEncoded(resp.Header.Get("Content-Encoding")) {
		body, err = decompressZstd(body)
		if err != nil {
			return nil, fmt.Errorf("decompress bundle: %w", err)
		}
	}
	return DecodeBundleBytes(body)
}

// PushBundle uploads the bundle zstd-compressed and decodes the report.
func (t *HTTPTransport) PushBundle(ctx context.Context, b *Bundle) (*PushReport, error) {
	raw, err := EncodeBundleToBytes(b)
	if err != nil {
		return nil, err
	}
	compressed, err := compressZstd(raw)
	if err != nil {
		return nil, fmt.Errorf("compress bundle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.bundleURL, bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", bundleContentType)
	req.Header.Set("Content-Encoding", "zstd")
	t.applyAuth(req)

	resp, err := retryDo(t.httpClient, req, t.maxAttempts)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	// Conflict carries a report too; other failures are plain errors.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		return nil, httpStatusError(req, resp.StatusCode, body)
	}
	return DecodePushReport(bytes.NewReader(body))
}

func (t *HTTPTransport) applyAuth(req *http.Request) {
	req.Header.Set(headerProtocol, ProtocolVersion)
	req.Header.Set(headerCapabilities, ClientCapabilities)

	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
		return
	}
	if t.user != "" {
		req.SetBasicAuth(t.user, t.pass)
	}
}

func httpStatusError(req *http.Request, status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Errorf("remote request failed (%s %s): %s", req.Method, req.URL.Path, msg)
}

// FileTransport reads and writes bundle files on the local filesystem,
// for sync through shared directories or removable media.
type FileTransport struct {
	path string
}

// NewFileTransport uses path as the bundle file location.
func NewFileTransport(path string) (*FileTransport, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bundle path is required")
	}
	return &FileTransport{path: path}, nil
}

// FetchBundle reads and decodes the bundle file.
func (t *FileTransport) FetchBundle(ctx context.Context) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, fmt.Errorf("read bundle %q: %w", t.path, err)
	}
	return DecodeBundleBytes(data)
}

// PushBundle atomically replaces the bundle file. A file target has no
// receiving repository, so every ref is reported accepted.
func (t *FileTransport) PushBundle(ctx context.Context, b *Bundle) (*PushReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := EncodeBundleToBytes(b)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, ".bundle-*")
	if err != nil {
		return nil, fmt.Errorf("write bundle %q: %w", t.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, fmt.Errorf("write bundle %q: %w", t.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("write bundle %q: %w", t.path, err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		os.Remove(tmpName)
		return nil, fmt.Errorf("write bundle %q: %w", t.path, err)
	}

	report := &PushReport{OK: true}
	for _, name := range sortedRefNames(b.Refs) {
		report.Refs = append(report.Refs, RefStatus{Name: name, OK: true})
	}
	return report, nil
}
