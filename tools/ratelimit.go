package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"
)

type rateLimitedTool struct {
	Tool
	limiter *rate.Limiter
}

// RateLimited wraps a tool so calls wait for a token bucket slot. Waiting
// honours ctx; a cancelled wait is returned without calling the tool.
func RateLimited(t Tool, limit rate.Limit, burst int) Tool {
	return &rateLimitedTool{Tool: t, limiter: rate.NewLimiter(limit, burst)}
}

func (t *rateLimitedTool) Call(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", t.Schema().Name, err)
	}
	return t.Tool.Call(ctx, args)
}
