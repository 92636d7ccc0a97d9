// Package flash queues toast notifications for a device until its next page
// render.
package flash

import "sync"

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notice is a single toast.
type Notice struct {
	Level   Level
	Message string
}

// Class returns the toast CSS modifier for the notice level.
func (n Notice) Class() string {
	if n.Level == LevelError {
		return "toast-error"
	}
	return "toast-success"
}

// maxQueued bounds a device's queue; older notices are dropped first.
const maxQueued = 8

type Queue struct {
	mu      sync.Mutex
	notices map[string][]Notice
}

func NewQueue() *Queue {
	return &Queue{notices: make(map[string][]Notice)}
}

func (q *Queue) Push(deviceID string, level Level, message string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := append(q.notices[deviceID], Notice{Level: level, Message: message})
	if len(list) > maxQueued {
		list = list[len(list)-maxQueued:]
	}
	q.notices[deviceID] = list
}

func (q *Queue) Success(deviceID, message string) { q.Push(deviceID, LevelSuccess, message) }

func (q *Queue) Error(deviceID, message string) { q.Push(deviceID, LevelError, message) }

// Drain returns and removes every queued notice for the device, oldest first.
func (q *Queue) Drain(deviceID string) []Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	list := q.notices[deviceID]
	delete(q.notices, deviceID)
	return list
}

// Forget drops queued notices for every device keep rejects.
func (q *Queue) Forget(keep func(deviceID string) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id := range q.notices {
		if !keep(id) {
			delete(q.notices, id)
			n++
		}
	}
	return n
}
