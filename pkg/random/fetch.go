package random

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// QueueSize is the number of quantum integers provisioned per session.
const QueueSize = 512

// Fetcher requests a batch of quantum integers from the external entropy
// service. Any failure, malformed response, or short batch is substituted
// with locally generated crypto numbers; the substitution never surfaces as
// an error to the caller.
type Fetcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewFetcher creates a fetcher for the given entropy endpoint.
func NewFetcher(url string, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

type entropyResponse struct {
	Data []float64 `json:"data"`
}

// FetchNumbers returns exactly QueueSize integers, preferring the entropy
// service and falling back to crypto generation.
func (f *Fetcher) FetchNumbers(ctx context.Context) []int {
	if numbers := f.fetchRemote(ctx); numbers != nil {
		return numbers
	}
	return fallbackNumbers(QueueSize)
}

func (f *Fetcher) fetchRemote(ctx context.Context) []int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		f.logger.Warn("building entropy request failed", zap.Error(err))
		return nil
	}

	res, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("entropy fetch failed", zap.Error(err))
		return nil
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		f.logger.Warn("entropy fetch returned non-OK status", zap.Int("status", res.StatusCode))
		return nil
	}

	var payload entropyResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		f.logger.Warn("entropy response malformed", zap.Error(err))
		return nil
	}

	numbers := make([]int, 0, QueueSize)
	for _, v := range payload.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		numbers = append(numbers, int(math.Abs(math.Floor(v))))
		if len(numbers) == QueueSize {
			break
		}
	}
	if len(numbers) < QueueSize {
		f.logger.Warn("entropy batch too short", zap.Int("count", len(numbers)))
		return nil
	}
	return numbers
}

func fallbackNumbers(count int) []int {
	numbers := make([]int, count)
	for i := range numbers {
		w, err := Word()
		if err != nil {
			// crypto/rand never fails on supported platforms; a zero draw
			// keeps the batch valid if it somehow does.
			w = 0
		}
		numbers[i] = int(w%100) + 1
	}
	return numbers
}
