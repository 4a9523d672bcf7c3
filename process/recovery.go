package process

import (
	"context"
	"fmt"
	"sort"

	"github.com/vouchsafe/vouchsafe/journal"
	"github.com/vouchsafe/vouchsafe/task"
	"github.com/vouchsafe/vouchsafe/timer"
)

// recover rebuilds all persisted instances by replaying their journals, then
// resumes their outstanding work.
//
// Replay executes no handlers and re-executes no tasks; it only reconstructs
// state. Outstanding work is resumed from the pending sets: unresolved tasks
// are re-dispatched, unexpired timers re-armed, expired timers fired, and
// parent/child relationships reconciled.
func (s *Supervisor) recover(ctx context.Context) error {
	ids, err := s.DataStore.InstanceIDs(ctx)
	if err != nil {
		return err
	}

	sort.Strings(ids)

	for _, id := range ids {
		j, err := s.DataStore.LoadJournal(ctx, id)
		if err != nil {
			return err
		}

		if len(j.Records) == 0 {
			continue
		}

		started, ok := j.Records[0].Event.(*journal.ProcessStarted)
		if !ok {
			return fmt.Errorf(
				"journal of instance %s does not begin with a process-started event",
				id,
			)
		}

		def, ok := s.definitions[started.ProcessType]
		if !ok {
			return UnknownProcessTypeError{ProcessType: started.ProcessType}
		}

		inst := newInstance(id, def, s)
		if err := inst.replay(j.Generation, j.Records); err != nil {
			return err
		}

		s.instances[id] = inst
	}

	// Plan the resumption of each instance before any goroutine starts, so
	// that planning reads a stable view of every instance's state.
	var plan []func(ctx context.Context) error

	for _, inst := range s.instances {
		p, err := s.planResume(inst)
		if err != nil {
			return err
		}

		plan = append(plan, p...)
	}

	for _, inst := range s.instances {
		go inst.run(ctx)
	}

	for _, resume := range plan {
		if err := resume(ctx); err != nil {
			return err
		}
	}

	return nil
}

// planResume returns the actions needed to resume an instance's outstanding
// work.
func (s *Supervisor) planResume(inst *instance) ([]func(ctx context.Context) error, error) {
	var plan []func(ctx context.Context) error

	// A continuation that was journaled but not applied is completed first;
	// the pending sets of the sealed generation are discarded with it.
	if cont, ok := inst.lastRecord.Event.(*journal.ProcessContinued); ok {
		plan = append(plan, func(ctx context.Context) error {
			return inst.enqueue(ctx, &continueMessage{input: cont.Input})
		})

		return plan, nil
	}

	if inst.status.IsTerminal() {
		return nil, nil
	}

	for _, ev := range inst.tasks {
		ev := ev

		input, err := inst.unpack(ev.Input)
		if err != nil {
			return nil, err
		}

		plan = append(plan, func(ctx context.Context) error {
			return s.Tasks.Dispatch(ctx, task.Request{
				TaskID:     ev.TaskID,
				InstanceID: inst.id,
				Name:       ev.Name,
				Input:      input,
				Policy:     ev.Policy,
			})
		})
	}

	for _, ev := range inst.timers {
		ev := ev

		// Expired timers are scheduled as-is; the timer service fires
		// overdue timers immediately. Already-fired timers never reach this
		// point, since TimerFired removes them from the pending set.
		plan = append(plan, func(ctx context.Context) error {
			s.Timers.Schedule(timer.Timer{
				TimerID:    ev.TimerID,
				InstanceID: inst.id,
				Name:       ev.Name,
				FireAt:     ev.FireAt,
			})
			return nil
		})
	}

	for _, ev := range inst.children {
		ev := ev
		child, ok := s.instances[ev.ChildID]

		if !ok {
			// The parent journaled the spawn but the engine stopped before
			// the child's journal was created.
			plan = append(plan, func(ctx context.Context) error {
				return s.startChild(ctx, inst, ev)
			})
			continue
		}

		if !child.status.IsTerminal() {
			continue
		}

		// The child ended but the engine stopped before the parent recorded
		// the outcome.
		m := &childResultMessage{
			childID:     child.id,
			processType: child.def.Name(),
		}

		if child.status == StatusCompleted {
			m.result = child.resultPacket
		} else {
			m.failed = true
			m.cause = child.terminalCause()
		}

		plan = append(plan, func(ctx context.Context) error {
			return inst.enqueue(ctx, m)
		})
	}

	return plan, nil
}
