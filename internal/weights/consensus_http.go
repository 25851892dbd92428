package weights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type weightPayload struct {
	Identity string `json:"identity"`
	Weight   uint64 `json:"weight"`
}

// HTTPConsensusClient submits weight vectors to the consensus endpoint.
type HTTPConsensusClient struct {
	url    string
	client *http.Client
}

func NewHTTPConsensusClient(url string) *HTTPConsensusClient {
	return &HTTPConsensusClient{
		url:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPConsensusClient) SubmitWeights(ctx context.Context, vector Vector) error {
	payload := make([]weightPayload, 0, len(vector))
	for _, e := range vector {
		payload = append(payload, weightPayload{Identity: e.Identity.String(), Weight: e.Weight})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode weight vector: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit weights: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("consensus endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// LoggingConsensusClient records submissions in the log instead of sending
// them anywhere. Selected when no consensus endpoint is configured.
type LoggingConsensusClient struct {
	logger *slog.Logger
}

func NewLoggingConsensusClient(logger *slog.Logger) *LoggingConsensusClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingConsensusClient{logger: logger}
}

func (c *LoggingConsensusClient) SubmitWeights(ctx context.Context, vector Vector) error {
	c.logger.InfoContext(ctx, "weight vector computed without consensus endpoint",
		"identities", len(vector),
		"total_weight", vector.Sum(),
	)
	return nil
}
