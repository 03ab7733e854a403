package email

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BrianStatesThat/thepepassport/internal/config"
)

const mockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores a message for recipient and kind.
func MockEmailKey(recipient, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", recipient, kind)
}

// RedisSender implements the Sender interface by storing emails in Redis
// for end-to-end tests to fetch.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
}

// NewRedisSender creates a new RedisSender
func NewRedisSender(client *redis.Client, cfg *config.Config) Sender {
	return &RedisSender{client: client, cfg: cfg}
}

// Send stores a JSON representation of the email under MockEmailKey of the
// first recipient and the message kind.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := headerValue(rawMessage, KindHeader)
	if kind == "" {
		kind = "unknown"
	}
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	jsonData, err := json.Marshal(map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, kind)
	if err := s.client.Set(ctx, key, jsonData, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}

	slog.Info("mock email stored in redis", "key", key, "ttl", mockEmailTTL, "subject", subject)
	return nil
}
