package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"CryptoSentinel/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const (
	defaultPrefix      = "sentinel"
	defaultSnapshotTTL = 2 * time.Hour
)

// Publisher fans out each cycle's snapshots and account state.
type Publisher interface {
	Publish(ctx context.Context, cycleID string, snapshots map[string]model.MarketSnapshot, account model.AccountState) error
	Close() error
}

// Nop publishes nothing. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, map[string]model.MarketSnapshot, model.AccountState) error {
	return nil
}
func (Nop) Close() error { return nil }

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisPublisher writes the latest snapshot per symbol and the account under
// fixed keys and announces each cycle on a pub/sub channel.
type RedisPublisher struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedis connects and pings the server.
func NewRedis(cfg Config, log zerolog.Logger) (*RedisPublisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	p := &RedisPublisher{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		log:    log.With().Str("component", "publisher").Logger(),
	}
	if p.prefix == "" {
		p.prefix = defaultPrefix
	}
	if p.ttl <= 0 {
		p.ttl = defaultSnapshotTTL
	}
	p.log.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return p, nil
}

// entry is one key write.
type entry struct {
	key   string
	value string
	ttl   time.Duration
}

// announcement is the message sent on the snapshots channel.
type announcement struct {
	CycleID    string    `json:"cycle_id"`
	Symbols    []string  `json:"symbols"`
	TotalValue float64   `json:"total_value"`
	At         time.Time `json:"at"`
}

// build renders the key writes and the channel message for one cycle.
func build(prefix string, ttl time.Duration, cycleID string, snapshots map[string]model.MarketSnapshot, account model.AccountState) ([]entry, string, error) {
	symbols := make([]string, 0, len(snapshots))
	for s := range snapshots {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	entries := make([]entry, 0, len(symbols)+1)
	for _, s := range symbols {
		body, err := json.Marshal(snapshots[s])
		if err != nil {
			return nil, "", fmt.Errorf("marshal snapshot %s: %w", s, err)
		}
		entries = append(entries, entry{key: prefix + ":snapshot:" + s, value: string(body), ttl: ttl})
	}
	acct, err := json.Marshal(account)
	if err != nil {
		return nil, "", fmt.Errorf("marshal account: %w", err)
	}
	entries = append(entries, entry{key: prefix + ":account", value: string(acct)})

	msg, err := json.Marshal(announcement{
		CycleID:    cycleID,
		Symbols:    symbols,
		TotalValue: account.TotalValue,
		At:         account.UpdatedAt,
	})
	if err != nil {
		return nil, "", err
	}
	return entries, string(msg), nil
}

// Publish writes everything in a single pipeline round trip.
func (p *RedisPublisher) Publish(ctx context.Context, cycleID string, snapshots map[string]model.MarketSnapshot, account model.AccountState) error {
	entries, msg, err := build(p.prefix, p.ttl, cycleID, snapshots, account)
	if err != nil {
		return err
	}

	pipe := p.client.Pipeline()
	for _, e := range entries {
		pipe.Set(ctx, e.key, e.value, e.ttl)
	}
	pipe.Publish(ctx, p.prefix+":snapshots", msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	p.log.Debug().Str("cycle_id", cycleID).Int("symbols", len(snapshots)).Msg("snapshots published")
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
