package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatewayStub scripts the status endpoint: "processing" until readyAfter
// polls have happened, then the given terminal status.
type gatewayStub struct {
	polls      atomic.Int64
	readyAfter int64
	terminal   Status
	result     []byte
}

func (g *gatewayStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/evaluations/status", func(w http.ResponseWriter, r *http.Request) {
		n := g.polls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n <= g.readyAfter {
			json.NewEncoder(w).Encode(Status{Status: "processing"})
			return
		}
		json.NewEncoder(w).Encode(g.terminal)
	})
	mux.HandleFunc("/api/evaluations/result/", func(w http.ResponseWriter, r *http.Request) {
		if g.result == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(g.result)
	})
	return mux
}

func TestWaitResolvesOnCompletion(t *testing.T) {
	stub := &gatewayStub{
		readyAfter: 2,
		terminal:   Status{Status: "completed", IsComplete: true, IsSuccessful: true},
		result:     []byte(`{"totalMultipliedScore":92}`),
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := NewPoller(srv.URL, 10, time.Millisecond)
	out, err := p.Wait(context.Background(), "Jane_Doe_4412")
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Status)
	assert.Contains(t, string(out.Result), "92")
	assert.Equal(t, int64(3), stub.polls.Load())
}

func TestWaitReportsFailureWithoutResult(t *testing.T) {
	stub := &gatewayStub{
		terminal: Status{Status: "failed", IsComplete: true},
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := NewPoller(srv.URL, 5, time.Millisecond)
	out, err := p.Wait(context.Background(), "Jane_Doe_4412")
	require.NoError(t, err)
	assert.Equal(t, "failed", out.Status)
	assert.Nil(t, out.Result)
}

func TestWaitTimesOutAfterBudget(t *testing.T) {
	stub := &gatewayStub{readyAfter: 1 << 30} // never completes
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := NewPoller(srv.URL, 3, time.Millisecond)
	out, err := p.Wait(context.Background(), "Jane_Doe_4412")
	require.NoError(t, err)
	assert.Equal(t, "timeout", out.Status)
	assert.Equal(t, int64(3), stub.polls.Load(), "attempt budget is strict")
}

func TestWaitFallsBackToDirectResultFetch(t *testing.T) {
	// Status never completes but the artifact exists: the final direct
	// fetch succeeds.
	stub := &gatewayStub{
		readyAfter: 1 << 30,
		result:     []byte(`{"band":"Meets Criteria"}`),
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	p := NewPoller(srv.URL, 2, time.Millisecond)
	out, err := p.Wait(context.Background(), "Jane_Doe_4412")
	require.NoError(t, err)
	assert.Equal(t, "completed", out.Status)
	assert.Contains(t, string(out.Result), "Meets Criteria")
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	stub := &gatewayStub{readyAfter: 1 << 30}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPoller(srv.URL, 10, time.Second)
	_, err := p.Wait(ctx, "Jane_Doe_4412")
	assert.Error(t, err)
}
