package workflow

import (
	"context"
	"strings"
	"time"

	"coparent/api/internal/store"
)

type DraftRequest struct {
	SectionID   store.SectionID
	Title       string
	Current     string
	Instruction string
}

// Drafter produces a full replacement text for a section. Implementations
// must return promptly once ctx is cancelled.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (string, error)
}

// ConcatDrafter appends the instruction to the current content after Delay.
type ConcatDrafter struct {
	Delay time.Duration
}

func (d ConcatDrafter) Draft(ctx context.Context, req DraftRequest) (string, error) {
	if d.Delay > 0 {
		timer := time.NewTimer(d.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	current := strings.TrimRight(req.Current, " \n")
	instruction := strings.TrimSpace(req.Instruction)
	if current == "" {
		return instruction, nil
	}
	return current + "\n\n" + instruction, nil
}

// DrafterFunc adapts a function to Drafter.
type DrafterFunc func(ctx context.Context, req DraftRequest) (string, error)

func (f DrafterFunc) Draft(ctx context.Context, req DraftRequest) (string, error) {
	return f(ctx, req)
}
