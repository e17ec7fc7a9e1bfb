package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/harrowgate/epv/internal/domain"
)

// Run expands macros once, then applies the action sequence stage by
// stage: each stage fans one goroutine out per current element via
// errgroup, barrier-synchronizes on Wait, and replaces the element vector
// with the concatenation of every task's output. A task's error aborts the
// stage immediately (the first error is returned without waiting for the
// other tasks, and errgroup cancels the shared context); remaining tasks
// may still run to completion but their results are discarded.
//
// Per-task outputs are collected into a result slot indexed by the task's
// position in the input vector and concatenated in that order once the
// barrier clears. This is the deterministic-ordering strengthening spec.md
// §9 calls out as safe and recommended, over leaving merge order to
// scheduling.
func Run(ctx context.Context, deps *Deps, actions []domain.Action, elements []domain.Element) ([]domain.Element, error) {
	expanded, err := expandMacros(deps.Macros, actions)
	if err != nil {
		return nil, err
	}
	if len(expanded) == 0 {
		return elements, nil
	}

	for i := range expanded {
		if len(elements) == 0 {
			return elements, nil
		}
		action := &expanded[i]

		g, gctx := errgroup.WithContext(ctx)
		results := make([][]domain.Element, len(elements))
		firstErr := make(chan error, 1)
		for idx, el := range elements {
			idx, el := idx, el
			g.Go(func() error {
				out, err := execute(gctx, deps, action, idx, el)
				if err != nil {
					select {
					case firstErr <- err:
					default:
					}
					return err
				}
				results[idx] = out
				return nil
			})
		}
		waitErr := make(chan error, 1)
		go func() { waitErr <- g.Wait() }()
		select {
		case err := <-firstErr:
			return nil, err
		case err := <-waitErr:
			if err != nil {
				return nil, err
			}
		}

		var next []domain.Element
		for _, r := range results {
			next = append(next, r...)
		}
		elements = next
	}

	return elements, nil
}
