// Package client implements the consumer side of the status/result
// gateway: a cooperative polling loop that waits for one job to finish.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/havenline/call-qa/internal/pkg/logger"
)

// Status is the gateway's status payload.
type Status struct {
	Status       string `json:"status"`
	StartDate    string `json:"startDate"`
	StopDate     string `json:"stopDate"`
	IsComplete   bool   `json:"isComplete"`
	IsSuccessful bool   `json:"isSuccessful"`
	Error        string `json:"error"`
}

// Outcome is what the polling loop resolves to. Status is one of the
// closed client-facing set; Result carries the aggregated artifact when
// one could be fetched.
type Outcome struct {
	Status string
	Result []byte
}

// Poller polls one job with a bounded attempt budget and a fixed delay.
// There is no server-side cancellation: when the budget runs out the
// pipeline may well still be running, so the poller makes one final
// attempt to fetch the result directly before reporting timeout.
type Poller struct {
	httpClient  *http.Client
	baseURL     string
	maxAttempts int
	delay       time.Duration
}

// NewPoller builds a poller against the gateway base URL.
func NewPoller(baseURL string, maxAttempts int, delay time.Duration) *Poller {
	if maxAttempts <= 0 {
		maxAttempts = 60
	}
	return &Poller{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		delay:       delay,
	}
}

// Wait polls until the job completes or the attempt budget is exhausted.
func (p *Poller) Wait(ctx context.Context, fileID string) (*Outcome, error) {
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		st, err := p.getStatus(ctx, fileID)
		if err != nil {
			logger.Warn("poll attempt failed", "attempt", attempt, "error", err.Error())
		} else if st.IsComplete {
			out := &Outcome{Status: st.Status}
			if st.IsSuccessful {
				if result, err := p.getResult(ctx, fileID); err == nil {
					out.Result = result
				}
			}
			return out, nil
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.delay):
		}
	}

	// Budget exhausted: the result may exist even though we never saw a
	// terminal status (e.g. the status record already expired).
	if result, err := p.getResult(ctx, fileID); err == nil {
		return &Outcome{Status: "completed", Result: result}, nil
	}
	return &Outcome{Status: "timeout"}, nil
}

func (p *Poller) getStatus(ctx context.Context, fileID string) (*Status, error) {
	u := fmt.Sprintf("%s/api/evaluations/status?fileId=%s", p.baseURL, url.QueryEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (p *Poller) getResult(ctx context.Context, fileID string) ([]byte, error) {
	u := fmt.Sprintf("%s/api/evaluations/result/%s", p.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("result endpoint returned %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
