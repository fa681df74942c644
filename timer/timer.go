// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultResolution is how often due tasks are checked.
const DefaultResolution = 100 * time.Millisecond

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs one-shot and repeating callbacks on a clock. Repeating
// tasks never overlap: the next run is scheduled only after the callback
// returns.
type TimerManager struct {
	clock      clockwork.Clock
	resolution time.Duration
	queue      TimerQueue
	mutex      sync.Mutex
	nextId     int64
	closeChan  chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

func NewTimerManager(clock clockwork.Clock, resolution time.Duration) *TimerManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	manager := &TimerManager{
		clock:      clock,
		resolution: resolution,
		queue:      make(TimerQueue, 0),
		nextId:     1,
		closeChan:  make(chan struct{}),
	}
	heap.Init(&manager.queue)
	manager.wg.Add(1)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, repeating every interval when
// interval > 0. It returns an ID usable with RemoveTimer.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			break
		}
	}
}

// Pending returns the number of scheduled tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts the dispatch loop and waits for running callbacks.
func (m *TimerManager) Stop() {
	m.closeOnce.Do(func() {
		close(m.closeChan)
	})
	m.wg.Wait()
}

func (m *TimerManager) process() {
	defer m.wg.Done()

	ticker := m.clock.NewTicker(m.resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			for _, task := range m.due() {
				m.run(task)
			}
		case <-m.closeChan:
			return
		}
	}
}

func (m *TimerManager) due() []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := m.clock.Now()
	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		ready = append(ready, task)
	}
	return ready
}

func (m *TimerManager) run(task *TimerTask) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		task.Callback()

		if task.Interval <= 0 {
			return
		}
		select {
		case <-m.closeChan:
			return
		default:
		}
		m.mutex.Lock()
		task.Execute = m.clock.Now().Add(task.Interval)
		heap.Push(&m.queue, task)
		m.mutex.Unlock()
	}()
}
