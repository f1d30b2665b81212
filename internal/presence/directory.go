package presence

import (
	"sort"
	"sync"
)

// Handle is one live connection that can accept server-initiated events. Deliver must not
// block; it reports false when the event could not be queued.
type Handle interface {
	Deliver(event string, payload interface{}) bool
}

// Registration identifies one handle registered under a user.
type Registration struct {
	userID string
	id     int64
}

// UserID returns the user the handle is registered under.
func (r Registration) UserID() string {
	return r.userID
}

// Valid reports whether the registration refers to a registered handle.
func (r Registration) Valid() bool {
	return r.userID != "" && r.id != 0
}

// Directory maps user identifiers to their live connection handles. A user has an entry
// exactly while at least one of their handles is registered.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]map[int64]Handle
	nextID  int64
}

func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]map[int64]Handle),
	}
}

// Register adds handle under userID. first is true when the user had no other handle.
func (d *Directory) Register(userID string, handle Handle) (registration Registration, first bool) {
	if userID == "" || handle == nil {
		return Registration{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	handles, ok := d.entries[userID]
	if !ok {
		handles = make(map[int64]Handle)
		d.entries[userID] = handles
	}
	handles[d.nextID] = handle
	return Registration{userID: userID, id: d.nextID}, !ok
}

// Unregister removes the handle. last is true when it was the user's final handle and the
// entry was dropped. Unregistering twice is a no-op.
func (d *Directory) Unregister(registration Registration) (last bool) {
	if !registration.Valid() {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	handles := d.entries[registration.userID]
	if handles == nil {
		return false
	}
	if _, ok := handles[registration.id]; !ok {
		return false
	}
	delete(handles, registration.id)
	if len(handles) == 0 {
		delete(d.entries, registration.userID)
		return true
	}
	return false
}

// Online reports whether the user has at least one registered handle.
func (d *Directory) Online(userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.entries[userID]
	return ok
}

// Users lists the online user identifiers in lexical order.
func (d *Directory) Users() []string {
	d.mu.RLock()
	userIDs := make([]string, 0, len(d.entries))
	for userID := range d.entries {
		userIDs = append(userIDs, userID)
	}
	d.mu.RUnlock()
	sort.Strings(userIDs)
	return userIDs
}

// Count returns the number of online users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// SendTo delivers the event to every handle of userID. present reports whether the user
// was online; delivered counts handles that accepted the event.
func (d *Directory) SendTo(userID, event string, payload interface{}) (present bool, delivered int) {
	d.mu.RLock()
	handles := d.entries[userID]
	if len(handles) == 0 {
		d.mu.RUnlock()
		return false, 0
	}
	copies := make([]Handle, 0, len(handles))
	for _, handle := range handles {
		copies = append(copies, handle)
	}
	d.mu.RUnlock()
	for _, handle := range copies {
		if handle.Deliver(event, payload) {
			delivered++
		}
	}
	return true, delivered
}
