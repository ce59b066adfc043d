package worker

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Outcome is the typed result of one HTTP delivery attempt. Exactly one of
// the two shapes holds: a response was obtained (Code set, Body truncated)
// or the request failed at the network level (Code nil, NetworkError set).
type Outcome struct {
	Code         *int
	Body         string
	NetworkError string
	Duration     time.Duration
}

// Responded reports whether an HTTP response was obtained, whatever the code.
func (o Outcome) Responded() bool {
	return o.Code != nil
}

// Failed reports whether the attempt counts against endpoint health:
// network error or status >= 400.
func (o Outcome) Failed() bool {
	return o.Code == nil || *o.Code >= 400
}

// Sender performs the outbound POST for delivery attempts. The per-attempt
// timeout comes from the caller so the manual test path can use a longer one.
type Sender struct {
	client  *http.Client
	maxBody int
}

func NewSender(maxResponseBodySize int) *Sender {
	return &Sender{
		client:  &http.Client{},
		maxBody: maxResponseBodySize,
	}
}

// Send POSTs body to url with the given headers. Any obtained response is a
// "responded" outcome, including 4xx/5xx; timeouts, connection and TLS
// failures become network-error outcomes. It never panics and never retries.
func (s *Sender) Send(ctx context.Context, url string, body []byte, headers map[string]string, timeout time.Duration) Outcome {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{
			NetworkError: err.Error(),
			Duration:     time.Since(start),
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Outcome{
			NetworkError: err.Error(),
			Duration:     time.Since(start),
		}
	}
	defer resp.Body.Close()

	// Read one byte past the cap to know the body was cut off.
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, int64(s.maxBody)+1))
	if len(respBody) > s.maxBody {
		respBody = respBody[:s.maxBody]
	}
	_ = readErr // a partial body with a status code is still a response

	code := resp.StatusCode
	return Outcome{
		Code:     &code,
		Body:     string(respBody),
		Duration: time.Since(start),
	}
}
