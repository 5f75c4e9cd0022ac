package replay

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// prereqBodyBudget is the generous response cap for prerequisite steps.
// Their bodies only feed value extraction, never display, so the limit just
// guards against pathological payloads.
const prereqBodyBudget = 16 << 20

// ChainResult reports a full chain execution. On failure, FailedStep names
// the step and Steps still holds every prior successful result so partial
// progress is visible.
type ChainResult struct {
	Success    bool
	FailedStep int // 1-based; zero when Success
	Steps      []*StepResult
}

// ExecuteChain runs the steps strictly in order, promoting session state
// captured from any step to all later steps. The chain aborts on the first
// failed step or when ctx is canceled.
func (o *Orchestrator) ExecuteChain(ctx context.Context, calls []Call, sess *Session) *ChainResult {
	if sess == nil {
		sess = NewSession()
	}
	result := &ChainResult{}

	for i, call := range calls {
		if err := ctx.Err(); err != nil {
			result.FailedStep = i + 1
			result.Steps = append(result.Steps, &StepResult{Call: call, State: StateTransientFailure, Err: err})
			return result
		}

		// Prerequisites get the large budget; the target keeps the
		// caller's requested limits.
		if i < len(calls)-1 && call.MaxBodyBytes == 0 {
			call.MaxBodyBytes = prereqBodyBudget
		}

		step := o.Execute(ctx, call, sess)
		result.Steps = append(result.Steps, step)

		if !step.Success() {
			result.FailedStep = i + 1
			return result
		}

		// A transient backoff hint from one step delays the next, not
		// the failed call itself.
		if step.RetryAfter > 0 && i < len(calls)-1 {
			select {
			case <-ctx.Done():
				result.FailedStep = i + 2
				return result
			case <-time.After(step.RetryAfter):
			}
		}
	}

	result.Success = true
	return result
}

// ExecuteConcurrent runs independent top-level calls with a bounded worker
// pool. Each call gets its own snapshot of base so sessions never cross.
// Results are positional; a call's failure does not cancel its siblings.
func (o *Orchestrator) ExecuteConcurrent(ctx context.Context, calls []Call, base *Session, workers int) []*StepResult {
	if workers <= 0 {
		workers = 4
	}
	if base == nil {
		base = NewSession()
	}

	results := make([]*StepResult, len(calls))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.Execute(ctx, call, base.Snapshot())
			return nil
		})
	}
	_ = g.Wait()

	for i, call := range calls {
		if results[i] == nil {
			results[i] = &StepResult{
				Call:  call,
				State: StateTransientFailure,
				Err:   fmt.Errorf("call not executed: %w", ctx.Err()),
			}
		}
	}
	return results
}
