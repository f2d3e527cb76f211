// Package notifications delivers Web Push messages for club lifecycle
// events. Delivery is best effort; expired subscriptions are pruned when
// the push service reports them gone.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/torresgol10/movie-club/internal/club/storage"
	"github.com/torresgol10/movie-club/internal/platform/config"
	"github.com/torresgol10/movie-club/internal/platform/timeouts"
)

// Config holds the VAPID credentials used to sign push requests.
type Config struct {
	VAPIDPublicKey  string `env:"MOVIECLUB_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `env:"MOVIECLUB_VAPID_PRIVATE_KEY"`
	Subscriber      string `env:"MOVIECLUB_VAPID_SUBJECT" envDefault:"mailto:club@example.com"`
}

// Enabled reports whether the config carries a usable key pair.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.VAPIDPublicKey) != "" && strings.TrimSpace(c.VAPIDPrivateKey) != ""
}

// LoadConfigFromEnv reads VAPID credentials from the environment. Missing
// keys are not an error; they disable push delivery.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse notifications env: %w", err)
	}
	return cfg, nil
}

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// PushNotifier sends Web Push messages to stored subscriptions.
type PushNotifier struct {
	store storage.PushSubscriptionStore
	cfg   Config
	ttl   int
}

// NewPushNotifier builds a notifier over the subscription store.
func NewPushNotifier(store storage.PushSubscriptionStore, cfg Config) *PushNotifier {
	return &PushNotifier{store: store, cfg: cfg, ttl: int((24 * time.Hour).Seconds())}
}

// NewVettingMovie announces a movie entering vetting to every member.
func (n *PushNotifier) NewVettingMovie(ctx context.Context, title string) error {
	return n.broadcast(ctx, Payload{
		Title: "New movie to vet",
		Body:  fmt.Sprintf("%s is up. Have you seen it?", title),
		URL:   "/vetting",
		Tag:   "vetting",
	})
}

// PendingVetting reminds the listed members to answer the vetting question.
func (n *PushNotifier) PendingVetting(ctx context.Context, memberIDs []string, title string) error {
	return n.sendToMembers(ctx, memberIDs, Payload{
		Title: "Vetting reminder",
		Body:  fmt.Sprintf("The club is waiting on your answer for %s.", title),
		URL:   "/vetting",
		Tag:   "vetting-reminder",
	})
}

// PendingVotes reminds the listed members to score a watchable movie.
func (n *PushNotifier) PendingVotes(ctx context.Context, memberIDs []string, title string) error {
	return n.sendToMembers(ctx, memberIDs, Payload{
		Title: "Vote reminder",
		Body:  fmt.Sprintf("Time to score %s.", title),
		URL:   "/votes",
		Tag:   "vote-reminder",
	})
}

// MovieCompleted announces a finished movie and its average score.
func (n *PushNotifier) MovieCompleted(ctx context.Context, title string, averageScore float64) error {
	return n.broadcast(ctx, Payload{
		Title: "Movie completed",
		Body:  fmt.Sprintf("%s scored %.1f/10.", title, averageScore),
		URL:   "/history",
		Tag:   "completed",
	})
}

func (n *PushNotifier) broadcast(ctx context.Context, payload Payload) error {
	if n == nil || n.store == nil {
		return nil
	}
	subscriptions, err := n.store.ListPushSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	return n.deliver(ctx, subscriptions, payload)
}

func (n *PushNotifier) sendToMembers(ctx context.Context, memberIDs []string, payload Payload) error {
	if n == nil || n.store == nil {
		return nil
	}
	var subscriptions []storage.PushSubscriptionRecord
	for _, memberID := range memberIDs {
		subs, err := n.store.ListPushSubscriptionsByMember(ctx, memberID)
		if err != nil {
			return fmt.Errorf("list push subscriptions for %s: %w", memberID, err)
		}
		subscriptions = append(subscriptions, subs...)
	}
	return n.deliver(ctx, subscriptions, payload)
}

// deliver pushes the payload to each subscription. Individual failures are
// logged and do not stop the rest of the batch.
func (n *PushNotifier) deliver(ctx context.Context, subscriptions []storage.PushSubscriptionRecord, payload Payload) error {
	if !n.cfg.Enabled() || len(subscriptions) == 0 {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}
	for _, subscription := range subscriptions {
		if err := n.send(ctx, subscription, body); err != nil {
			log.Printf("push to %s: %v", subscription.ID, err)
		}
	}
	return nil
}

func (n *PushNotifier) send(ctx context.Context, record storage.PushSubscriptionRecord, body []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeouts.PushDelivery)
	defer cancel()

	subscription := &webpush.Subscription{
		Endpoint: record.Endpoint,
		Keys: webpush.Keys{
			P256dh: record.P256dh,
			Auth:   record.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(sendCtx, body, subscription, &webpush.Options{
		Subscriber:      n.cfg.Subscriber,
		VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
		TTL:             n.ttl,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	// The push service reports gone subscriptions with 404 or 410.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := n.store.DeletePushSubscription(ctx, record.ID); err != nil {
			return fmt.Errorf("delete gone subscription: %w", err)
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}
