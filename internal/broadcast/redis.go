package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const channelPrefix = "panel:automation:"

// RedisBridge mirrors hub events onto redis pub/sub channels so subscribers
// outside this process (other panel instances, bots, ops tooling) see the
// same stream.
type RedisBridge struct {
	cli *redis.Client
}

func NewRedisBridge(url string) (*RedisBridge, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBridge{cli: redis.NewClient(opt)}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("redis bridge marshal", "error", err)
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := b.cli.Publish(pctx, channelPrefix+ev.Channel, body).Err(); err != nil {
		slog.Warn("redis bridge publish", "channel", ev.Channel, "error", err)
	}
}

func (b *RedisBridge) Close() error { return b.cli.Close() }
