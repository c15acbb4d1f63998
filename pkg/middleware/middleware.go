// Package middleware defines the per-batch processing stages log lines pass
// through between a source and the shipper.
package middleware

import (
	"context"

	"github.com/yairfalse/logship/pkg/domain"
)

// Middleware processes batches of lines. Run drives any background work the
// middleware needs (watch loops, cache refreshes) and must be invoked exactly
// once per instance; it blocks until ctx is cancelled.
type Middleware interface {
	Run(ctx context.Context)
	Process(lines []*domain.Line) []*domain.Line
}

// Chain applies registered middleware in registration order.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Register appends a middleware to the chain.
func (c *Chain) Register(m Middleware) {
	c.middlewares = append(c.middlewares, m)
}

// Run starts every middleware's background loop and blocks until ctx is
// cancelled and all loops have returned.
func (c *Chain) Run(ctx context.Context) {
	done := make(chan struct{})
	for _, m := range c.middlewares {
		m := m
		go func() {
			m.Run(ctx)
			done <- struct{}{}
		}()
	}
	for range c.middlewares {
		<-done
	}
}

// Process passes the batch through each middleware in order.
func (c *Chain) Process(lines []*domain.Line) []*domain.Line {
	for _, m := range c.middlewares {
		lines = m.Process(lines)
	}
	return lines
}
