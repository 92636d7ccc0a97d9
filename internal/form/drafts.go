package form

import (
	"sync"
	"time"

	"github.com/dukerupert/gasportal/internal/model"
)

type storedDraft struct {
	draft   RequestDraft
	touched time.Time
}

// Drafts keeps each device's in-progress service request between page loads.
type Drafts struct {
	mu     sync.Mutex
	drafts map[string]storedDraft
}

func NewDrafts() *Drafts {
	return &Drafts{drafts: make(map[string]storedDraft)}
}

// Get returns a copy of the device's draft, or an empty one.
func (d *Drafts) Get(deviceID string) RequestDraft {
	d.mu.Lock()
	defer d.mu.Unlock()
	draft := d.drafts[deviceID].draft
	draft.Attachments = append([]model.Attachment(nil), draft.Attachments...)
	return draft
}

func (d *Drafts) Put(deviceID string, draft RequestDraft) {
	d.mu.Lock()
	d.drafts[deviceID] = storedDraft{draft: draft, touched: time.Now()}
	d.mu.Unlock()
}

// Reset forgets the device's draft.
func (d *Drafts) Reset(deviceID string) {
	d.mu.Lock()
	delete(d.drafts, deviceID)
	d.mu.Unlock()
}

// Prune drops drafts untouched for longer than idle.
func (d *Drafts) Prune(idle time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := time.Now().Add(-idle)
	n := 0
	for id, sd := range d.drafts {
		if sd.touched.Before(cutoff) {
			delete(d.drafts, id)
			n++
		}
	}
	return n
}
