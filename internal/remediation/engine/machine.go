package engine

import (
	"fmt"

	"github.com/danshapiro/opsguard/internal/remediation/runtime"
)

// router picks the step that follows a completed step. Routers only read
// the state.
type router func(s *RunState) Step

func always(next Step) router {
	return func(*RunState) Step { return next }
}

func unlessInfra(next Step) router {
	return func(s *RunState) Step {
		if s.ErrorKind == runtime.InfraDefect {
			return StepInfraStop
		}
		return next
	}
}

var transitions = map[Step]router{
	StepProvisionWorkspace: routeAfterProvision,
	StepClassify:           unlessInfra(StepGenerateReproduction),
	StepInfraStop:          always(StepFinalReport),

	StepGenerateReproduction: always(StepExecuteReproduction),
	StepExecuteReproduction:  unlessInfra(StepReproductionDecision),
	StepReproductionDecision: routeAfterReproduction,
	StepNotReproducible:      always(StepFinalReport),

	StepGeneratePatch:          unlessInfra(StepApplyPatch),
	StepApplyPatch:             always(StepSyntaxCheck),
	StepSyntaxCheck:            unlessInfra(StepExecuteFixVerification),
	StepExecuteFixVerification: unlessInfra(StepFixDecision),
	StepFixDecision:            routeAfterFix,
	StepFailReport:             always(StepFinalReport),

	StepFinalReport: always(StepDone),
}

func routeAfterProvision(s *RunState) Step {
	if s.Status.Terminal() {
		return StepFinalReport
	}
	return StepClassify
}

// routeAfterReproduction lets an infrastructure verdict preempt everything,
// including a verified reproduction.
func routeAfterReproduction(s *RunState) Step {
	switch {
	case s.ErrorKind == runtime.InfraDefect:
		return StepInfraStop
	case s.ReproductionVerified:
		return StepGeneratePatch
	case s.ReproduceAttempts >= MaxReproduceAttempts:
		return StepNotReproducible
	default:
		return StepGenerateReproduction
	}
}

func routeAfterFix(s *RunState) Step {
	switch {
	case s.FixVerified:
		return StepFinalReport
	case s.FixAttempts >= MaxFixAttempts:
		return StepFailReport
	default:
		return StepGeneratePatch
	}
}

func next(step Step, s *RunState) (Step, error) {
	r, ok := transitions[step]
	if !ok {
		return "", fmt.Errorf("no transition out of step %q", step)
	}
	return r(s), nil
}
