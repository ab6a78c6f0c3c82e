package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stocknotify/pkg/fetchx"
	logx "stocknotify/pkg/logx"
)

const defaultLineAPI = "https://api.line.me/v2/bot/message/push"

// LineConfig configures the LINE push channel.
type LineConfig struct {
	Token string

	// Endpoint overrides the push API address; tests point it at a local
	// server. Empty means the production API.
	Endpoint string

	RetryMax int
	Timeout  time.Duration
}

type lineSink struct {
	cfg LineConfig
	cl  *fetchx.Client
	log logx.Logger
}

// NewLine builds the LINE push sink. The channel pushes to one user id per
// call; its retry budget matches the webhook channel so both delivery paths
// survive the same transient failures.
func NewLine(cfg LineConfig, cl *fetchx.Client, log logx.Logger) Sink {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultLineAPI
	}
	if cfg.RetryMax == 0 {
		cfg.RetryMax = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &lineSink{cfg: cfg, cl: cl, log: log}
}

func (s *lineSink) Kind() Kind { return KindLine }

type lineMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type linePush struct {
	To       string        `json:"to"`
	Messages []lineMessage `json:"messages"`
}

func (s *lineSink) Deliver(ctx context.Context, text string, addrs []string) []Delivery {
	out := make([]Delivery, 0, len(addrs))
	for _, to := range addrs {
		out = append(out, Delivery{Addr: to, Err: s.push(ctx, to, text)})
	}
	return out
}

func (s *lineSink) push(ctx context.Context, to, text string) error {
	body, err := json.Marshal(linePush{
		To:       to,
		Messages: []lineMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.Token)
	header.Set("Content-Type", "application/json")

	resp, err := s.cl.Do(ctx, http.MethodPost, s.cfg.Endpoint, header, body, fetchx.Options{
		MaxRetries: s.cfg.RetryMax,
		Timeout:    s.cfg.Timeout,
	})
	if err != nil {
		return fmt.Errorf("line push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line push: status %d: %s", resp.StatusCode, string(detail))
	}
	s.log.Debug("line push sent", logx.String("to", to))
	return nil
}
