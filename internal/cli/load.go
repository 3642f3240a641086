package cli

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/smmbot/internal/client"
	"github.com/okian/smmbot/internal/domain/model"
)

// Worker configuration constants.
const (
	workerChannelMultiplier = 2
	reportInterval          = time.Second
)

// Submission outcomes.
const (
	outcomeAccepted     = "accepted"
	outcomeDuplicate    = "duplicate"
	outcomeBackpressure = "backpressure"
	outcomeFailed       = "failed"
)

var loadPhrases = []string{
	"Great post!",
	"Love this",
	"Amazing content",
	"Thanks for sharing",
	"So inspiring",
	"Well said",
}

// LoadConfig holds configuration for a load run.
type LoadConfig struct {
	Count     int
	Workers   int
	Member    string
	Platforms []model.Platform
	Types     []model.ActionType
	Verbose   bool
}

// LoadStats holds load run statistics.
type LoadStats struct {
	Generated    int
	Submitted    int
	Accepted     int
	Duplicate    int
	Backpressure int
	Failed       int
	Duration     time.Duration
}

// RunLoad generates cfg.Count actions and submits them with cfg.Workers
// concurrent submitters, printing progress to out.
func RunLoad(ctx context.Context, c *client.Client, cfg LoadConfig, out io.Writer) (LoadStats, error) {
	if cfg.Count < 1 || cfg.Workers < 1 {
		return LoadStats{}, errors.New("count and workers must be positive")
	}
	if len(cfg.Platforms) == 0 || len(cfg.Types) == 0 {
		return LoadStats{}, errors.New("at least one platform and one action type are required")
	}
	if err := c.Health(ctx); err != nil {
		return LoadStats{}, fmt.Errorf("daemon health check failed: %w", err)
	}

	start := time.Now()
	reqs := generateRequests(cfg)
	stats := submitRequests(ctx, c, cfg, reqs, out)
	stats.Generated = len(reqs)
	stats.Duration = time.Since(start)
	return stats, ctx.Err()
}

// generateRequests builds cfg.Count requests with fresh ids, spreading
// platforms and types at random.
func generateRequests(cfg LoadConfig) []model.ActionRequest {
	reqs := make([]model.ActionRequest, cfg.Count)
	for i := range reqs {
		p := cfg.Platforms[randomIndex(len(cfg.Platforms))]
		t := cfg.Types[randomIndex(len(cfg.Types))]
		req := model.ActionRequest{
			ID:       uuid.New().String(),
			Platform: string(p),
			Type:     string(t),
			Member:   cfg.Member,
		}
		if t != model.Post {
			req.Target = "https://" + string(p) + ".com/post/" + strconv.Itoa(i)
		}
		if t == model.Comment || t == model.Post {
			req.Content = loadPhrases[randomIndex(len(loadPhrases))]
		}
		reqs[i] = req
	}
	return reqs
}

// randomIndex returns a random index below n using crypto/rand.
func randomIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// submitRequests fans reqs out over a worker pool.
func submitRequests(ctx context.Context, c *client.Client, cfg LoadConfig, reqs []model.ActionRequest, out io.Writer) LoadStats {
	var (
		submitted    int64
		accepted     int64
		duplicate    int64
		backpressure int64
		failed       int64
		lastReport   atomic.Int64
	)

	reqChan := make(chan model.ActionRequest, cfg.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range reqChan {
				if ctx.Err() != nil {
					continue
				}
				switch submitOne(ctx, c, req) {
				case outcomeAccepted:
					atomic.AddInt64(&accepted, 1)
				case outcomeDuplicate:
					atomic.AddInt64(&duplicate, 1)
				case outcomeBackpressure:
					atomic.AddInt64(&backpressure, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				total := atomic.AddInt64(&submitted, 1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last < int64(reportInterval) || !lastReport.CompareAndSwap(last, now) {
					continue
				}
				line := fmt.Sprintf("submitted %d/%d (accepted: %d, duplicate: %d, backpressure: %d, failed: %d)",
					total, len(reqs), atomic.LoadInt64(&accepted), atomic.LoadInt64(&duplicate),
					atomic.LoadInt64(&backpressure), atomic.LoadInt64(&failed))
				if cfg.Verbose {
					fmt.Fprintln(out, mutedStyle.Render(line))
				} else {
					fmt.Fprint(out, "\r"+line)
				}
			}
		}()
	}

	go func() {
		defer close(reqChan)
		for _, req := range reqs {
			select {
			case <-ctx.Done():
				return
			case reqChan <- req:
			}
		}
	}()

	wg.Wait()
	if !cfg.Verbose && lastReport.Load() != 0 {
		fmt.Fprintln(out)
	}

	return LoadStats{
		Submitted:    int(atomic.LoadInt64(&submitted)),
		Accepted:     int(atomic.LoadInt64(&accepted)),
		Duplicate:    int(atomic.LoadInt64(&duplicate)),
		Backpressure: int(atomic.LoadInt64(&backpressure)),
		Failed:       int(atomic.LoadInt64(&failed)),
	}
}

// submitOne submits a single request and classifies the outcome by the
// daemon's error code.
func submitOne(ctx context.Context, c *client.Client, req model.ActionRequest) string {
	_, err := c.Submit(ctx, req)
	if err == nil {
		return outcomeAccepted
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case outcomeDuplicate:
			return outcomeDuplicate
		case outcomeBackpressure:
			return outcomeBackpressure
		}
	}
	return outcomeFailed
}

func (s LoadStats) render(w io.Writer) {
	t := newTable("Load run", "METRIC", "VALUE")
	t.add("generated", strconv.Itoa(s.Generated))
	t.add("submitted", strconv.Itoa(s.Submitted))
	t.add("accepted", okStyle.Render(strconv.Itoa(s.Accepted)))
	t.add("duplicate", strconv.Itoa(s.Duplicate))
	t.add("backpressure", warnStyle.Render(strconv.Itoa(s.Backpressure)))
	t.add("failed", errStyle.Render(strconv.Itoa(s.Failed)))
	t.add("duration", s.Duration.Round(time.Millisecond).String())
	if secs := s.Duration.Seconds(); secs > 0 {
		t.add("rate", fmt.Sprintf("%.1f/s", float64(s.Submitted)/secs))
	}
	t.render(w)
}
