package task

import "quados/kernel/sync"

// ID identifies a task registered with a Scheduler.
type ID uint32

// Scheduler keeps track of the tasks known to the kernel. It does not
// implement a scheduling policy; tasks run to completion when entered.
type Scheduler struct {
	lock   sync.Spinlock
	tasks  map[ID]*Task
	nextID ID
}

// NewScheduler returns an empty task registry. The first task added gets
// ID 1.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[ID]*Task), nextID: 1}
}

// Add registers t and returns its ID.
func (s *Scheduler) Add(t *Task) ID {
	s.lock.Acquire()
	defer s.lock.Release()

	id := s.nextID
	s.nextID++
	s.tasks[id] = t
	return id
}

// Get returns the task registered under id.
func (s *Scheduler) Get(id ID) (*Task, bool) {
	s.lock.Acquire()
	defer s.lock.Release()

	t, ok := s.tasks[id]
	return t, ok
}

// Remove unregisters the task with the given id and returns it.
func (s *Scheduler) Remove(id ID) (*Task, bool) {
	s.lock.Acquire()
	defer s.lock.Release()

	t, ok := s.tasks[id]
	delete(s.tasks, id)
	return t, ok
}

// Len returns the number of registered tasks.
func (s *Scheduler) Len() int {
	s.lock.Acquire()
	defer s.lock.Release()

	return len(s.tasks)
}
