// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package providers

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient decorates a ChatClient with a token-bucket rate limit.
//
// Description:
//
//	A single chat turn makes up to three model calls (intent extraction,
//	optional planning, summary), so provider quotas are easy to exhaust
//	under load. The limiter blocks until a slot is available or the request
//	context expires, so the request context stays the only timeout in play.
//
// Thread Safety: Safe for concurrent use.
type RateLimitedClient struct {
	inner   ChatClient
	limiter *rate.Limiter
}

// NewRateLimitedClient wraps inner with a requests-per-second limit.
//
// Inputs:
//   - inner: The client to wrap. Must not be nil.
//   - rps: Sustained requests per second. Must be > 0.
//   - burst: Burst size. Must be >= 1.
func NewRateLimitedClient(inner ChatClient, rps float64, burst int) (*RateLimitedClient, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner client must not be nil")
	}
	if rps <= 0 || burst < 1 {
		return nil, fmt.Errorf("invalid rate limit: rps=%v burst=%d", rps, burst)
	}
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// Chat waits for a limiter slot, then delegates.
func (c *RateLimitedClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Chat(ctx, messages, opts)
}
