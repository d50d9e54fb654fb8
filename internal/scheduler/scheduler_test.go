package scheduler

import "testing"

func TestScheduleOrdering(t *testing.T) {
	s := NewScheduler()

	var fired []string
	s.RegisterEvent(RomPrepareData, func() { fired = append(fired, "prepare") })
	s.RegisterEvent(RomEndTransfer, func() { fired = append(fired, "end") })

	s.ScheduleEvent(RomEndTransfer, 60)
	s.ScheduleEvent(RomPrepareData, 20)

	s.Tick(19)
	if len(fired) != 0 {
		t.Fatalf("expected no events fired yet, got %v", fired)
	}

	s.Tick(1) // cycle 20
	if len(fired) != 1 || fired[0] != "prepare" {
		t.Fatalf("expected prepare to fire at cycle 20, got %v", fired)
	}

	s.Tick(40) // cycle 60
	if len(fired) != 2 || fired[1] != "end" {
		t.Fatalf("expected end to fire at cycle 60, got %v", fired)
	}
}

func TestRescheduleReplacesPending(t *testing.T) {
	s := NewScheduler()

	count := 0
	s.RegisterEvent(RomPrepareData, func() { count++ })

	s.ScheduleEvent(RomPrepareData, 100)
	s.ScheduleEvent(RomPrepareData, 10) // replaces the pending occurrence

	s.Tick(10)
	if count != 1 {
		t.Fatalf("expected event to fire exactly once at the rescheduled cycle, got %d", count)
	}

	s.Tick(100)
	if count != 1 {
		t.Fatalf("old schedule should not have fired a second time, count=%d", count)
	}
}

func TestDescheduleEvent(t *testing.T) {
	s := NewScheduler()

	fired := false
	s.RegisterEvent(RomEndTransfer, func() { fired = true })
	s.ScheduleEvent(RomEndTransfer, 10)
	s.DescheduleEvent(RomEndTransfer)

	s.Tick(100)
	if fired {
		t.Fatalf("deschedule should have prevented the event from firing")
	}
}

func TestUntil(t *testing.T) {
	s := NewScheduler()
	s.RegisterEvent(RomPrepareData, func() {})
	s.ScheduleEvent(RomPrepareData, 60)

	if got := s.Until(RomPrepareData); got != 60 {
		t.Fatalf("expected 60 cycles until event, got %d", got)
	}

	s.Tick(20)
	if got := s.Until(RomPrepareData); got != 40 {
		t.Fatalf("expected 40 cycles until event after ticking 20, got %d", got)
	}
}
