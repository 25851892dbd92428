package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	id "palisade/pkg/domain"
)

type dispatchPayload struct {
	Network     string  `json:"network"`
	ModelType   string  `json:"model_type"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature,omitempty"`
}

type dispatchResult struct {
	Text    string `json:"text"`
	Failure string `json:"failure,omitempty"`
}

// HTTPDispatcher delivers queries to serving nodes over HTTP. Timeouts and
// transport faults come back as failed Responses, never as errors; the context
// deadline set by the coordinator is the only timeout.
type HTTPDispatcher struct {
	client *http.Client
}

func NewHTTPDispatcher() *HTTPDispatcher {
	return &HTTPDispatcher{client: &http.Client{}}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, endpoint string, identity id.Identity, req Request) (Response, error) {
	start := time.Now()
	failed := func(kind FailureKind) Response {
		return Response{Identity: identity, Failure: kind, Elapsed: time.Since(start)}
	}

	body, err := json.Marshal(dispatchPayload{
		Network:     req.Network,
		ModelType:   req.ModelType,
		Prompt:      req.Prompt,
		Temperature: req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("encode dispatch payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/api/v1/respond", bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("build dispatch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failed(FailureTimeout), nil
		}
		return failed(FailureTransport), nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return failed(FailureDenied), nil
	case resp.StatusCode != http.StatusOK:
		return failed(FailureTransport), nil
	}

	var result dispatchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return failed(FailureInterpret), nil
	}
	if result.Failure != "" {
		return failed(FailureKind(result.Failure)), nil
	}

	return Response{
		Identity: identity,
		Result:   result.Text,
		Elapsed:  time.Since(start),
	}, nil
}
