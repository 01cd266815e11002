package core

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known service names.
const (
	ServiceControl = "control"
	ServiceMap     = "map"
)

// Handle names an endpoint that other actors address by service name.
type Handle struct {
	// ActorID is the endpoint the name resolves to
	ActorID ActorID

	// Name is the service name
	Name string
}

// String returns a string representation of the handle.
func (h Handle) String() string {
	return fmt.Sprintf(":%08x(%s)", uint32(h.ActorID), h.Name)
}

// HandleManager manages the mapping between service names and endpoints.
type HandleManager struct {
	mu sync.RWMutex

	// Maps service name to handle
	byName map[string]*Handle

	// Maps actor ID to service name
	byActor map[ActorID]string
}

// NewHandleManager creates a new HandleManager.
func NewHandleManager() *HandleManager {
	return &HandleManager{
		byName:  make(map[string]*Handle),
		byActor: make(map[ActorID]string),
	}
}

// Bind registers name for the given endpoint.
func (hm *HandleManager) Bind(name string, id ActorID) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	if _, exists := hm.byName[name]; exists {
		return nil, fmt.Errorf("service name '%s' already exists", name)
	}

	handle := &Handle{ActorID: id, Name: name}
	hm.byName[name] = handle
	hm.byActor[id] = name
	return handle, nil
}

// Resolve returns the endpoint bound to name.
func (hm *HandleManager) Resolve(name string) (ActorID, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	if handle, exists := hm.byName[name]; exists {
		return handle.ActorID, true
	}
	return NoActor, false
}

// NameOf returns the service name bound to id, if any.
func (hm *HandleManager) NameOf(id ActorID) (string, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	name, exists := hm.byActor[id]
	return name, exists
}

// Release removes a name binding.
func (hm *HandleManager) Release(name string) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle, exists := hm.byName[name]
	if !exists {
		return fmt.Errorf("service '%s' not found", name)
	}
	delete(hm.byName, name)
	delete(hm.byActor, handle.ActorID)
	return nil
}

// List returns all handles sorted by name.
func (hm *HandleManager) List() []*Handle {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	handles := make([]*Handle, 0, len(hm.byName))
	for _, handle := range hm.byName {
		handles = append(handles, handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].Name < handles[j].Name })
	return handles
}
