// Package loop provides the run-later queue of the control goroutine.
//
// Work that must not run inside a notification (for example mutating a
// buffer from its own insert observer) is deferred and runs on the next
// turn, when the owner drains the queue.
package loop

// Task is a unit of deferred work.
type Task func()

// Queue holds single-shot deferred tasks. It is not safe for concurrent use.
type Queue struct {
	tasks []Task
}

// Defer schedules task for the next turn.
func (q *Queue) Defer(task Task) {
	if task == nil {
		return
	}
	q.tasks = append(q.tasks, task)
}

// Pending returns the number of scheduled tasks.
func (q *Queue) Pending() int { return len(q.tasks) }

// Drain runs the tasks scheduled before the call, in order, and returns how
// many ran. Tasks deferred while draining wait for the next Drain.
func (q *Queue) Drain() int {
	batch := q.tasks
	q.tasks = nil
	for _, task := range batch {
		task()
	}
	return len(batch)
}

// DrainAll drains until the queue is empty or limit turns have run.
// It returns the number of tasks that ran.
func (q *Queue) DrainAll(limit int) int {
	total := 0
	for turn := 0; turn < limit && len(q.tasks) > 0; turn++ {
		total += q.Drain()
	}
	return total
}
