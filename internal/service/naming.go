package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/osama-ammar/ray-scripts/internal/models"
	"github.com/osama-ammar/ray-scripts/internal/planning"
)

const (
	// DefaultMaxNameAttempts caps the collision loop.
	DefaultMaxNameAttempts = 100

	// maxAppendLength is the longest name that still gets a suffix appended.
	// Longer names have their last two characters replaced.
	maxAppendLength = 14
)

// NameResolver finds a beamset name not yet used in a plan.
// The check is not atomic with the later create.
type NameResolver struct {
	beamSets    planning.BeamSets
	rng         *rand.Rand
	maxAttempts int
}

// NewNameResolver creates a resolver. A nil rng uses a randomly seeded source.
func NewNameResolver(beamSets planning.BeamSets, rng *rand.Rand, maxAttempts int) *NameResolver {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxNameAttempts
	}
	return &NameResolver{beamSets: beamSets, rng: rng, maxAttempts: maxAttempts}
}

// Unique returns desired if it is free, otherwise a mutated name that is free.
func (n *NameResolver) Unique(ctx context.Context, plan models.Handle, desired string) (string, error) {
	candidate := desired
	for attempt := 0; ; attempt++ {
		existing, err := n.beamSets.QueryBeamSetNames(ctx, plan, candidate)
		if err != nil {
			return "", fmt.Errorf("query beamset names: %w", err)
		}
		if !slices.Contains(existing, candidate) {
			return candidate, nil
		}
		if attempt >= n.maxAttempts {
			return "", fmt.Errorf("%w: %s after %d attempts", ErrNameSpaceExhausted, desired, n.maxAttempts)
		}
		candidate = MutateName(candidate, n.rng.IntN(99)+1)
	}
}

// MutateName adds a two-digit suffix to name. Names longer than 14 characters
// keep their length: the suffix replaces the last two characters.
func MutateName(name string, suffix int) string {
	digits := fmt.Sprintf("%02d", suffix)
	runes := []rune(name)
	if len(runes) > maxAppendLength {
		return string(runes[:len(runes)-2]) + digits
	}
	return name + digits
}
