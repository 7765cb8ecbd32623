package remote

import (
	"bytes"
	"io"
	"net/http"
	"time"
)

// retryDo executes an HTTP request with exponential backoff retry.
// Retries on network errors, HTTP 429, and HTTP 5xx responses; 4xx client
// errors are returned as-is. For requests with a body, the body is
// buffered and replayed on each attempt.
func retryDo(client *http.Client, req *http.Request, maxAttempts int) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
	}

	var lastErr error
	backoff := time.Second

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if !isRetryableStatus(resp.StatusCode) || attempt == maxAttempts-1 {
			return resp, nil
		}

		// Drain and close body before retry.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = nil
	}

	return nil, lastErr
}

// isRetryableStatus reports whether the HTTP status should be retried.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
