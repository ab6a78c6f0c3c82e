package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stocknotify/pkg/fetchx"
	logx "stocknotify/pkg/logx"
)

// WebhookConfig configures the webhook broadcast channel.
type WebhookConfig struct {
	RetryMax   int
	Timeout    time.Duration
	RatePerSec int
}

type webhookSink struct {
	cfg     WebhookConfig
	cl      *fetchx.Client
	log     logx.Logger
	limiter *rate.Limiter
}

// NewWebhook builds the broadcast sink. Endpoints are posted in parallel;
// the limiter keeps a large address set from bursting all at once.
func NewWebhook(cfg WebhookConfig, cl *fetchx.Client, log logx.Logger) Sink {
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &webhookSink{
		cfg:     cfg,
		cl:      cl,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *webhookSink) Kind() Kind { return KindWebhook }

func (s *webhookSink) Deliver(ctx context.Context, text string, addrs []string) []Delivery {
	out := make([]Delivery, len(addrs))
	var wg sync.WaitGroup
	for i, u := range addrs {
		if u == "" {
			out[i] = Delivery{Addr: u}
			continue
		}
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			err := s.post(ctx, u, text)
			out[i] = Delivery{Addr: u, Err: err}
			if err != nil {
				s.log.Warn("webhook delivery failed", logx.String("url", u), logx.Err(err))
			} else {
				s.log.Debug("webhook delivered", logx.String("url", u))
			}
		}(i, u)
	}
	wg.Wait()
	return out
}

func (s *webhookSink) post(ctx context.Context, url, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(struct {
		Content string `json:"content"`
	}{Content: text})
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := s.cl.Do(ctx, http.MethodPost, url, header, body, fetchx.Options{
		MaxRetries: s.cfg.RetryMax,
		Timeout:    s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook post: status %d: %s", resp.StatusCode, string(detail))
	}
	return nil
}
