package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lox/showcase/internal/models"
)

// Candidate is what a tier produces: coordinates plus whatever locality
// fields it could supply.
type Candidate struct {
	Fix     models.GeoFix
	City    string
	Country string
	IP      string
}

// HasCoordinates reports whether the fix carries usable coordinates. The
// (0,0) point is what providers return when they have none.
func (c Candidate) HasCoordinates() bool {
	return c.Fix.Latitude != 0 || c.Fix.Longitude != 0
}

// Provider is one tier of the fallback chain.
type Provider struct {
	Name string
	// Timeout bounds Locate. Zero leaves only the caller's context and the
	// HTTP client timeout.
	Timeout time.Duration
	Locate  func(ctx context.Context) (Candidate, error)
	// Enrich runs after a successful Locate, outside the tier timeout. It
	// fills optional fields and never fails the tier.
	Enrich func(ctx context.Context, c *Candidate)
}

// First evaluates providers in order, each at most once, and returns the
// first success along with the name of the tier that produced it.
func First(ctx context.Context, providers []Provider) (Candidate, string, bool) {
	for _, p := range providers {
		if ctx.Err() != nil {
			return Candidate{}, "", false
		}
		c, err := attempt(ctx, p)
		if err != nil {
			log.Printf("resolver: %s failed, falling back: %v", p.Name, err)
			continue
		}
		if p.Enrich != nil {
			p.Enrich(ctx, &c)
		}
		return c, p.Name, true
	}
	return Candidate{}, "", false
}

type attemptResult struct {
	c   Candidate
	err error
}

// attempt runs p.Locate under its timeout. A provider that ignores its
// context is abandoned once the deadline passes.
func attempt(ctx context.Context, p Provider) (Candidate, error) {
	if p.Locate == nil {
		return Candidate{}, errors.New("not configured")
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		c, err := p.Locate(ctx)
		done <- attemptResult{c: c, err: err}
	}()

	select {
	case res := <-done:
		return res.c, res.err
	case <-ctx.Done():
		return Candidate{}, fmt.Errorf("%s: %w", p.Name, ctx.Err())
	}
}
