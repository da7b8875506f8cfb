// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill use cases.
package usecases

import (
	"context"
	"fmt"

	"github.com/MyCarrier-DevOps/trailsync/internal/domain"
)

// DivergenceCalculator computes ahead/behind counts between two commits.
type DivergenceCalculator interface {
	Divergence(ctx context.Context, localTip, upstreamTip string) (domain.Divergence, error)
}

// Decide maps a branch, its optional upstream and their divergence to a decision.
//
// Behind always wins over ahead: a branch that diverged both ways is reset to
// the remote tip, discarding the local commits. The editing application cannot
// take part in a merge, so this precedence must not change.
func Decide(local domain.BranchRef, upstream *domain.BranchRef, div domain.Divergence) domain.Decision {
	if upstream == nil {
		return domain.Decision{Kind: domain.DecisionNoRemote}
	}

	switch {
	case div.BehindBy > 0:
		return domain.Decision{
			Kind:       domain.DecisionResetToRemote,
			Target:     upstream.Tip,
			Divergence: div,
		}
	case div.AheadBy > 0:
		return domain.Decision{Kind: domain.DecisionPushNeeded, Divergence: div}
	default:
		return domain.Decision{Kind: domain.DecisionInSync, Divergence: div}
	}
}

// Resolve computes the divergence between local and upstream and decides what to do.
// No divergence is computed when upstream is nil.
func Resolve(
	ctx context.Context,
	calc DivergenceCalculator,
	local *domain.BranchRef,
	upstream *domain.BranchRef,
) (domain.Decision, error) {
	if local == nil || upstream == nil {
		return domain.Decision{Kind: domain.DecisionNoRemote}, nil
	}

	if local.Tip == upstream.Tip {
		return Decide(*local, upstream, domain.Divergence{}), nil
	}

	div, err := calc.Divergence(ctx, local.Tip, upstream.Tip)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("failed to compute divergence of %s against %s: %w",
			local.Name, upstream.Name, err)
	}

	return Decide(*local, upstream, div), nil
}
