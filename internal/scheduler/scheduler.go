package scheduler

import (
	"fmt"
	"math"
)

// Scheduler is a simple event scheduler that can be used to schedule events
// to be executed at a specific cycle.
//
// The scheduler is a linked list of events, sorted by the cycle at which
// they should be executed. When an event is scheduled, it is inserted into
// the list in the correct position, and when the scheduler is ticked, the
// next event is executed and removed from the list, if the event is scheduled
// for the current cycle.
//
// This is the machine's single shared timeline: both ARM cores, the cart
// engine, and anything else driven by cycle counts share one Scheduler, so
// no lock is needed between them — suspension points are event boundaries.
type Scheduler struct {
	cycles uint64
	root   *Event

	events      [256]*Event // only one event of each type can be scheduled at a time
	nextEventAt uint64      // the cycle at which the next event should be executed
}

func NewScheduler() *Scheduler {
	s := &Scheduler{
		cycles:      0,
		events:      [256]*Event{},
		nextEventAt: math.MaxUint64,
		root: &Event{
			cycle: math.MaxUint64,
			handler: func() {
				fmt.Println("scheduler: no event handler found")
			},
		},
	}

	// initialize the events with the number of event types
	// to avoid the cost of allocating a new event for each
	// scheduled event
	for i := 0; i < eventTypes; i++ {
		s.events[i] = &Event{}
	}

	return s
}

func (s *Scheduler) Cycle() uint64 {
	return s.cycles
}

// RegisterEvent registers a function of the EventType to be called when
// the event is scheduled for execution. This is to avoid the cost of
// having to allocate a function for each event, which would frequently
// invoke the garbage collector, despite the functions always performing
// the same task.
func (s *Scheduler) RegisterEvent(eventType EventType, fn func()) {
	s.events[eventType].handler = fn
	s.events[eventType].eventType = eventType
}

// Tick advances the scheduler by the given number of cycles. This will
// execute all scheduled events up to the current cycle. If an event is
// scheduled for the current cycle, it will be executed and removed from
// the list. If an event is scheduled for a cycle in the future, it will
// be executed when the scheduler is ticked with the cycle at which it
// should be executed.
func (s *Scheduler) Tick(c uint64) {
	s.cycles += c

	// if the next event is scheduled for a cycle in the future,
	// then we can return early and avoid iterating over the list
	// of events
	if s.nextEventAt > s.cycles {
		return
	}

	s.nextEventAt = s.doEvents(s.nextEventAt)
}

// doEvents executes all events scheduled in the list up to the given
// cycle. It returns the cycle at which the next event should be executed.
func (s *Scheduler) doEvents(nextEvent uint64) uint64 {
	for nextEvent <= s.cycles {
		// we need to copy the event to a local variable
		// as the handler may schedule a new event, which
		// could modify the event in the list
		event := s.root

		s.root = event.next
		event.handler()

		nextEvent = s.root.cycle
	}

	return nextEvent
}

// ScheduleEvent schedules an event to be executed at the given cycle,
// relative to the current cycle (cycle is a delta, not an absolute value).
func (s *Scheduler) ScheduleEvent(eventType EventType, cycle uint64) {
	s.DescheduleEvent(eventType)
	atCycle := s.cycles + cycle

	var prev *Event
	this := s.events[eventType]
	this.cycle = atCycle

	if atCycle < s.nextEventAt {
		this.next = s.root
		s.root = this
		s.nextEventAt = atCycle
		return
	}

	event := s.root
	for {
		if atCycle < event.cycle {
			if prev == nil {
				this.next = event
				s.root = this
				s.nextEventAt = atCycle
				break
			} else if prev.cycle <= atCycle {
				this.next = event
				prev.next = this

				break
			}
		}

		if event.next == nil && event.cycle <= atCycle {
			event.next = this
			break
		}

		prev = event
		event = event.next
	}
}

// DescheduleEvent removes a pending event of the given type, if one is
// scheduled. ScheduleEvent calls it first, so scheduling a type again
// replaces its pending occurrence.
func (s *Scheduler) DescheduleEvent(eventType EventType) {
	target := s.events[eventType]

	var prev *Event
	for event := s.root; event != nil; prev, event = event, event.next {
		if event == target {
			if prev == nil {
				s.root = event.next
			} else {
				prev.next = event.next
			}
			s.nextEventAt = s.root.cycle
			return
		}
	}
}

func (s *Scheduler) String() string {
	result := ""
	event := s.root
	for event != nil {
		result += fmt.Sprintf("%s:%d->", event.eventType, event.cycle)
		event = event.next
	}
	return result
}

// Until returns the number of cycles until the given event type is due to
// fire, or 0 if it is not currently scheduled.
func (s *Scheduler) Until(eventType EventType) uint64 {
	event := s.root
	for event != nil {
		if event == s.events[eventType] {
			return event.cycle - s.cycles
		}
		event = event.next
	}
	return 0
}
