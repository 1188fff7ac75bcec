// Package similarity scores how likely two contacts are to describe the same
// person, from their names and primary email addresses.
package similarity

import (
	"fmt"
	"math"
	"strings"

	"contactdir/internal/contacts"
)

// Weights balances the name and email signals. They must be non-negative and
// sum to 1 so that scores stay within [0, 1].
type Weights struct {
	Name  float64
	Email float64
}

// DefaultWeights favours email, the stronger duplicate signal.
var DefaultWeights = Weights{Name: 0.4, Email: 0.6}

const weightTolerance = 1e-9

// Validate checks the weights produce a bounded score.
func (w Weights) Validate() error {
	if w.Name < 0 || w.Email < 0 {
		return fmt.Errorf("weights must be non-negative (name=%v, email=%v)", w.Name, w.Email)
	}
	if math.Abs(w.Name+w.Email-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1 (got %v)", w.Name+w.Email)
	}
	return nil
}

// Scorer computes weighted contact similarity.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a scorer after validating its weights.
func NewScorer(w Weights) (Scorer, error) {
	if err := w.Validate(); err != nil {
		return Scorer{}, err
	}
	return Scorer{Weights: w}, nil
}

// Default is the scorer used when no weights are configured.
var Default = Scorer{Weights: DefaultWeights}

// Score returns the weighted similarity of a and b in [0, 1]. Identifiers and
// edit locators are ignored.
func (s Scorer) Score(a, b contacts.Contact) float64 {
	score := s.Weights.Name*NameSimilarity(a, b) + s.Weights.Email*EmailSimilarity(a, b)
	return math.Max(0, math.Min(1, score))
}

// Score scores a and b with DefaultWeights.
func Score(a, b contacts.Contact) float64 {
	return Default.Score(a, b)
}

// NameSimilarity is the Ratio of the normalized "{first} {last}" names.
func NameSimilarity(a, b contacts.Contact) float64 {
	return Ratio(a.NormalizedName(), b.NormalizedName())
}

// EmailSimilarity is 1 when both primary emails are present and equal ignoring
// case, 0 otherwise.
func EmailSimilarity(a, b contacts.Contact) float64 {
	ea := strings.ToLower(a.PrimaryEmail())
	eb := strings.ToLower(b.PrimaryEmail())
	if ea != "" && ea == eb {
		return 1
	}
	return 0
}
