// Package duplicates finds likely duplicate contacts by scoring every
// unordered pair in a collection.
//
// Pairs are reported independently: if A~B and B~C both qualify, both pairs
// are returned and no clustering into {A, B, C} is attempted.
package duplicates

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"contactdir/internal/contacts"
	"contactdir/internal/contacts/similarity"
)

// DefaultThreshold is the minimum similarity for a pair to be reported.
const DefaultThreshold = 0.8

// parallelCutoff is the collection size below which fan-out is not worth it.
const parallelCutoff = 64

// ValidateThreshold rejects thresholds outside [0, 1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1 (got %v)", threshold)
	}
	return nil
}

// FindDuplicates scores every pair (i, j) with i < j once and returns those at
// or above threshold, ordered by ascending i then j.
func FindDuplicates(cs []contacts.Contact, threshold float64) []contacts.DuplicatePair {
	out := []contacts.DuplicatePair{}
	for i := range cs {
		out = append(out, scanRow(similarity.Default, cs, i, threshold)...)
	}
	return out
}

// Config tunes a Detector.
type Config struct {
	Workers int
	Scorer  similarity.Scorer
}

// DefaultConfig uses one worker per available CPU and the default weights.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
		Scorer:  similarity.Default,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if err := c.Scorer.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid scorer: %w", err)
	}
	return nil
}

// Detector runs the pairwise scan across a bounded set of goroutines. Its
// output is identical to FindDuplicates for the same scorer: rows are scored
// concurrently and stitched back together in row order.
type Detector struct {
	cfg Config
}

// NewDetector returns a Detector after validating cfg.
func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Detector{cfg: cfg}, nil
}

// Find returns the pairs of cs scoring at or above threshold. Cancellation is
// observed between rows.
func (d *Detector) Find(ctx context.Context, cs []contacts.Contact, threshold float64) ([]contacts.DuplicatePair, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if d.cfg.Workers == 1 || len(cs) < parallelCutoff {
		out := []contacts.DuplicatePair{}
		for i := range cs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out = append(out, scanRow(d.cfg.Scorer, cs, i, threshold)...)
		}
		return out, nil
	}

	rows := make([][]contacts.DuplicatePair, len(cs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)
	for i := range cs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = scanRow(d.cfg.Scorer, cs, i, threshold)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []contacts.DuplicatePair{}
	for _, row := range rows {
		out = append(out, row...)
	}
	return out, nil
}

// scanRow scores cs[i] against every later contact.
func scanRow(s similarity.Scorer, cs []contacts.Contact, i int, threshold float64) []contacts.DuplicatePair {
	var row []contacts.DuplicatePair
	for j := i + 1; j < len(cs); j++ {
		score := s.Score(cs[i], cs[j])
		if score >= threshold {
			row = append(row, contacts.DuplicatePair{
				ContactA:   cs[i],
				ContactB:   cs[j],
				Similarity: score,
			})
		}
	}
	return row
}
