package control

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"workctl/internal/metrics"
)

const (
	PhaseNotStarted  = "not_started"
	PhaseRunning     = "running"
	PhaseTerminating = "terminating"
	PhaseAborting    = "aborting"
	PhaseTerminated  = "terminated"

	eventStart     = "start"
	eventSkip      = "skip"
	eventTerminate = "terminate"
	eventAbort     = "abort"
	eventFinish    = "finish"
)

// SupervisionLoop is the default Callback. It dispatches the children on the
// first tick that sees shouldStart, spends the run budget while they work,
// then requests termination and escalates to abort when the abort budget runs
// out before every child reported termination.
//
// A loop instance belongs to exactly one supervisor.
type SupervisionLoop struct {
	phase *fsm.FSM
}

func NewSupervisionLoop() *SupervisionLoop {
	return &SupervisionLoop{
		phase: fsm.NewFSM(
			PhaseNotStarted,
			fsm.Events{
				{Name: eventStart, Src: []string{PhaseNotStarted}, Dst: PhaseRunning},
				{Name: eventSkip, Src: []string{PhaseNotStarted}, Dst: PhaseTerminating},
				{Name: eventTerminate, Src: []string{PhaseRunning}, Dst: PhaseTerminating},
				{Name: eventAbort, Src: []string{PhaseTerminating}, Dst: PhaseAborting},
				{Name: eventFinish, Src: []string{PhaseTerminating, PhaseAborting}, Dst: PhaseTerminated},
			},
			fsm.Callbacks{},
		),
	}
}

// Phase returns the current phase of the loop.
func (l *SupervisionLoop) Phase() string {
	return l.phase.Current()
}

func (l *SupervisionLoop) Tick(s *Supervisor, elapsed time.Duration) error {
	ctx := context.Background()

	switch l.phase.Current() {
	case PhaseNotStarted:
		switch {
		case s.ShouldTerminate():
			s.log.Infof("Termination of %s requested before start, nothing dispatched", s.ID())
			s.skipDispatch()
			if err := l.phase.Event(ctx, eventSkip); err != nil {
				return err
			}
			return l.terminate(ctx, s, 0)
		case s.ShouldStart():
			n := s.DispatchChildren()
			s.log.Infof("Dispatched %d children of %s", n, s.ID())
			return l.phase.Event(ctx, eventStart)
		}
		return nil

	case PhaseRunning:
		if s.keepRunning(elapsed) {
			return nil
		}
		s.log.Infof("Requesting termination of %s (run budget %v, iterations %d)",
			s.ID(), s.RunBudget(), s.IterationBudget())
		metrics.IncTerminationRequested(s.ID())
		if err := l.phase.Event(ctx, eventTerminate); err != nil {
			return err
		}
		// The tick that enters terminating does not spend abort budget.
		return l.terminate(ctx, s, 0)

	case PhaseTerminating, PhaseAborting:
		return l.terminate(ctx, s, elapsed)
	}
	return nil
}

func (l *SupervisionLoop) terminate(ctx context.Context, s *Supervisor, elapsed time.Duration) error {
	s.SetShouldTerminate(true)
	if s.Finish() {
		return l.phase.Event(ctx, eventFinish)
	}
	if l.phase.Is(PhaseAborting) {
		return nil
	}
	if !s.IsAborting() && s.consumeAbortBudget(elapsed) {
		return nil
	}
	s.log.Warnf("Children of %s did not terminate in time, aborting", s.ID())
	metrics.IncAborted(s.ID())
	s.SetIsAborting(true)
	return l.phase.Event(ctx, eventAbort)
}
