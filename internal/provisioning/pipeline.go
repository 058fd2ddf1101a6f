package provisioning

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/imamik/spinless/internal/apperr"
)

// Phase is one step of a provisioning run.
type Phase interface {
	Name() string
	Provision(ctx *Context) error
}

type phaseFunc struct {
	name string
	fn   func(*Context) error
}

func (p phaseFunc) Name() string                 { return p.name }
func (p phaseFunc) Provision(ctx *Context) error { return p.fn(ctx) }

// NewPhase wraps a function as a Phase.
func NewPhase(name string, fn func(*Context) error) Phase {
	return phaseFunc{name: name, fn: fn}
}

// RunPhases executes phases sequentially and stops at the first failure.
func RunPhases(ctx *Context, phases []Phase) error {
	start := time.Now()
	ctx.Observer.Printf("Starting %s of %s with %d phases", ctx.Action, ctx.Resource(), len(phases))

	for i, phase := range phases {
		phaseStart := time.Now()
		name := fmt.Sprintf("%s (%d/%d)", phase.Name(), i+1, len(phases))

		LogPhaseStart(ctx.Observer, name)
		if err := phase.Provision(ctx); err != nil {
			LogPhaseFailed(ctx.Observer, name, err)
			return fmt.Errorf("%s phase failed: %w", phase.Name(), err)
		}
		LogPhaseComplete(ctx.Observer, name, time.Since(phaseStart))
	}

	ctx.Observer.Printf("Phases completed in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// RunSteps executes every step even if earlier ones failed and returns the
// failures aggregated, or nil.
func RunSteps(ctx *Context, steps []Phase) error {
	var result *multierror.Error

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)
			break
		}

		stepStart := time.Now()
		name := fmt.Sprintf("%s (%d/%d)", step.Name(), i+1, len(steps))

		LogPhaseStart(ctx.Observer, name)
		if err := step.Provision(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.Name(), err))
			ctx.Observer.Event(Event{
				Type:     EventStepFailed,
				Phase:    name,
				Resource: ctx.Spec.Name,
				Message:  fmt.Sprintf("failed, continuing: %v", err),
			})
			continue
		}
		LogPhaseComplete(ctx.Observer, name, time.Since(stepStart))
	}

	if result != nil {
		result.ErrorFormat = apperr.JoinMessages
	}
	return result.ErrorOrNil()
}
