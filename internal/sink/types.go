// Package sink implements the delivery channels a detected item fans out
// to. Channels are independent: one failing channel, or one failing
// endpoint inside a broadcast channel, never disturbs its siblings.
package sink

import "context"

type Kind string

const (
	KindLine     Kind = "line"
	KindWebhook  Kind = "webhook"
	KindTelegram Kind = "telegram"
)

// Delivery is the outcome for one address.
type Delivery struct {
	Addr string
	Err  error
}

// Sink delivers one rendered message to a channel-specific address set and
// reports a per-address outcome. Implementations do not fail the call as a
// whole for individual address failures.
type Sink interface {
	Kind() Kind
	Deliver(ctx context.Context, text string, addrs []string) []Delivery
}

// Failed counts unsuccessful deliveries.
func Failed(ds []Delivery) int {
	n := 0
	for _, d := range ds {
		if d.Err != nil {
			n++
		}
	}
	return n
}
