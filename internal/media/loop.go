package media

import (
	"sync"
)

// A Loop runs posted tasks one at a time, in order. Each pipeline stage owns a
// loop and touches its state only from tasks running on it, so the stages need
// no locks of their own.
type Loop interface {
	// PostTask queues task to run on the loop. Returns false if the loop has
	// stopped and the task was dropped.
	PostTask(task func()) bool
}

// A TaskLoop is a Loop backed by a single goroutine. The task queue is
// unbounded, so tasks may post to their own loop freely.
type TaskLoop struct {
	name string

	tasks   []func()
	stopped bool
	sync.Mutex

	// Signalled when tasks are added.
	wake chan struct{}

	// Closed when Stop() is requested, to trigger run loop exit.
	quit     chan struct{}
	quitOnce sync.Once

	// Closed when run loop actually terminates.
	terminated chan struct{}
}

func NewTaskLoop(name string) *TaskLoop {
	loop := &TaskLoop{
		name:       name,
		wake:       make(chan struct{}, 1),
		quit:       make(chan struct{}),
		terminated: make(chan struct{}),
	}
	go loop.run()
	return loop
}

func (loop *TaskLoop) String() string {
	return loop.name
}

func (loop *TaskLoop) PostTask(task func()) bool {
	loop.Lock()
	if loop.stopped {
		loop.Unlock()
		return false
	}
	loop.tasks = append(loop.tasks, task)
	loop.Unlock()

	select {
	case loop.wake <- struct{}{}:
	default:
		// Already signalled.
	}
	return true
}

func (loop *TaskLoop) run() {
	defer close(loop.terminated)
	log.Debug("Starting loop %s", loop.name)

	for {
		select {
		case <-loop.quit:
			return
		case <-loop.wake:
		}

		for {
			task := loop.next()
			if task == nil {
				break
			}
			task()

			select {
			case <-loop.quit:
				return
			default:
			}
		}
	}
}

func (loop *TaskLoop) next() func() {
	loop.Lock()
	defer loop.Unlock()

	if len(loop.tasks) == 0 {
		return nil
	}
	task := loop.tasks[0]
	loop.tasks[0] = nil
	loop.tasks = loop.tasks[1:]
	return task
}

// Stop terminates the loop after the task currently running, dropping any
// queued tasks, and waits for the goroutine to exit. Stop is idempotent, and
// must not be called from a task running on this loop.
func (loop *TaskLoop) Stop() {
	loop.Lock()
	loop.stopped = true
	dropped := len(loop.tasks)
	loop.tasks = nil
	loop.Unlock()

	loop.quitOnce.Do(func() {
		log.Debug("Stopping loop %s (%d queued tasks dropped)", loop.name, dropped)
		close(loop.quit)
	})
	<-loop.terminated
}

// Invoke runs fn on loop and waits for it to finish. Returns false if the loop
// has stopped. Must not be used with a ManualLoop, or from the loop itself.
func Invoke(loop Loop, fn func()) bool {
	done := make(chan struct{})
	if !loop.PostTask(func() {
		defer close(done)
		fn()
	}) {
		return false
	}
	<-done
	return true
}

// A ManualLoop queues tasks until RunUntilIdle is called. It lets a single
// goroutine drive several stages deterministically.
type ManualLoop struct {
	tasks   []func()
	stopped bool
	sync.Mutex
}

func (loop *ManualLoop) PostTask(task func()) bool {
	loop.Lock()
	defer loop.Unlock()

	if loop.stopped {
		return false
	}
	loop.tasks = append(loop.tasks, task)
	return true
}

// RunUntilIdle runs queued tasks, including tasks they post, until the queue
// is empty. Returns the number of tasks run.
func (loop *ManualLoop) RunUntilIdle() int {
	n := 0
	for {
		loop.Lock()
		if len(loop.tasks) == 0 {
			loop.Unlock()
			return n
		}
		task := loop.tasks[0]
		loop.tasks = loop.tasks[1:]
		loop.Unlock()

		task()
		n++
	}
}

// Pending returns the number of queued tasks.
func (loop *ManualLoop) Pending() int {
	loop.Lock()
	defer loop.Unlock()
	return len(loop.tasks)
}

// Stop drops queued tasks and rejects new ones.
func (loop *ManualLoop) Stop() {
	loop.Lock()
	loop.stopped = true
	loop.tasks = nil
	loop.Unlock()
}
