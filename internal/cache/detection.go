package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DetectionTTL is how long a detected language is trusted for a given
// audio URL. Audio behind a URL rarely changes, but signed URLs get
// reissued, so entries are not kept forever.
const DetectionTTL = 24 * time.Hour

// DetectionCache stores detected languages keyed by audio URL, so
// repeated detect calls for the same lecture skip the provider round
// trip entirely.
type DetectionCache struct {
	client *redis.Client
	prefix string
}

func NewDetectionCache(redisURL string) (*DetectionCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &DetectionCache{
		client: redis.NewClient(opt),
		prefix: "kalam:detect:",
	}, nil
}

func (c *DetectionCache) key(audioURL string) string {
	sum := sha256.Sum256([]byte(audioURL))
	return fmt.Sprintf("%s%x", c.prefix, sum[:16])
}

// Get returns the cached language for the URL, or "" on a miss. Cache
// failures are logged and treated as misses; detection still works
// without Redis.
func (c *DetectionCache) Get(ctx context.Context, audioURL string) string {
	lang, err := c.client.Get(ctx, c.key(audioURL)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("detection cache read failed", "error", err)
		}
		return ""
	}
	return lang
}

// Set stores a detected language, best-effort.
func (c *DetectionCache) Set(ctx context.Context, audioURL, language string) {
	if err := c.client.Set(ctx, c.key(audioURL), language, DetectionTTL).Err(); err != nil {
		slog.Warn("detection cache write failed", "error", err)
	}
}

func (c *DetectionCache) Close() error {
	return c.client.Close()
}
