package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatusRegistry is the single source of truth for valid status values per
// entity kind. Reads are safe for unlimited concurrency; writes serialize on
// an internal lock. The registry is an injected dependency, never a
// package-level singleton.
type StatusRegistry struct {
	mu sync.RWMutex

	// byID maps status ID to status.
	byID map[string]*Status

	// byKey maps (name, kind) to status ID for uniqueness checks.
	byKey map[statusKey]string

	// byKind maps kind to status IDs in registration order.
	byKind map[EntityKind][]string

	// refs counts instance nodes referencing each status. A status with a
	// non-zero count cannot be removed.
	refs map[string]int
}

type statusKey struct {
	name string
	kind EntityKind
}

// NewStatusRegistry creates an empty status registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		byID:   make(map[string]*Status),
		byKey:  make(map[statusKey]string),
		byKind: make(map[EntityKind][]string),
		refs:   make(map[string]int),
	}
}

// Register adds a status for an entity kind. The first status registered for
// a kind becomes the kind's initial status at instantiation time.
// Fails with DUPLICATE_STATUS if (name, kind) already exists.
func (r *StatusRegistry) Register(name string, kind EntityKind, category StatusCategory, color string) (*Status, error) {
	if name == "" {
		return nil, NewValidationError("status name must not be empty", nil).
			WithCode(ErrCodeUnknownStatus)
	}
	if err := kind.Validate(); err != nil {
		return nil, NewValidationError("invalid entity kind", err).
			WithCode(ErrCodeUnknownStatus)
	}
	if err := category.Validate(); err != nil {
		return nil, NewValidationError("invalid status category", err).
			WithCode(ErrCodeUnknownStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := statusKey{name: name, kind: kind}
	if existing, ok := r.byKey[key]; ok {
		return nil, NewConflictError(
			fmt.Sprintf("status %q already registered for kind %s", name, kind), nil).
			WithCode(ErrCodeDuplicateStatus).
			WithDetail("existing_id", existing)
	}

	now := time.Now().UTC()
	status := &Status{
		ID:        uuid.New().String(),
		Name:      name,
		Kind:      kind,
		Category:  category,
		Color:     color,
		Position:  len(r.byKind[kind]),
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.byID[status.ID] = status
	r.byKey[key] = status.ID
	r.byKind[kind] = append(r.byKind[kind], status.ID)

	return status, nil
}

// Resolve returns the status with the given ID.
func (r *StatusRegistry) Resolve(id string) (*Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status, ok := r.byID[id]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("status not found: %s", id), nil).
			WithCode(ErrCodeUnknownStatus)
	}
	cp := *status
	return &cp, nil
}

// ResolveByName returns the status with the given name for a kind.
func (r *StatusRegistry) ResolveByName(name string, kind EntityKind) (*Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[statusKey{name: name, kind: kind}]
	if !ok {
		return nil, NewValidationError(
			fmt.Sprintf("status %q not registered for kind %s", name, kind), nil).
			WithCode(ErrCodeUnknownStatus)
	}
	cp := *r.byID[id]
	return &cp, nil
}

// ListForKind returns all statuses for a kind ordered by position.
func (r *StatusRegistry) ListForKind(kind EntityKind) []*Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byKind[kind]
	out := make([]*Status, 0, len(ids))
	for _, id := range ids {
		cp := *r.byID[id]
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

// InitialFor returns the initial status for a kind: the first registered.
func (r *StatusRegistry) InitialFor(kind EntityKind) (*Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byKind[kind]
	if len(ids) == 0 {
		return nil, NewValidationError(
			fmt.Sprintf("no statuses registered for kind %s", kind), nil).
			WithCode(ErrCodeUnknownStatus)
	}
	cp := *r.byID[ids[0]]
	return &cp, nil
}

// ForCategory returns the status mapped to a canonical category for a kind.
func (r *StatusRegistry) ForCategory(kind EntityKind, category StatusCategory) (*Status, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.byKind[kind] {
		if r.byID[id].Category == category {
			cp := *r.byID[id]
			return &cp, nil
		}
	}
	return nil, NewValidationError(
		fmt.Sprintf("no status for category %s registered for kind %s", category, kind), nil).
		WithCode(ErrCodeUnknownStatus)
}

// Rename changes a status's presentation name. Allowed even while the status
// is referenced; the (name, kind) uniqueness constraint still applies.
func (r *StatusRegistry) Rename(id, newName string) error {
	if newName == "" {
		return NewValidationError("status name must not be empty", nil).
			WithCode(ErrCodeUnknownStatus)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.byID[id]
	if !ok {
		return NewValidationError(fmt.Sprintf("status not found: %s", id), nil).
			WithCode(ErrCodeUnknownStatus)
	}

	newKey := statusKey{name: newName, kind: status.Kind}
	if existing, ok := r.byKey[newKey]; ok && existing != id {
		return NewConflictError(
			fmt.Sprintf("status %q already registered for kind %s", newName, status.Kind), nil).
			WithCode(ErrCodeDuplicateStatus).
			WithDetail("existing_id", existing)
	}

	delete(r.byKey, statusKey{name: status.Name, kind: status.Kind})
	status.Name = newName
	status.UpdatedAt = time.Now().UTC()
	r.byKey[newKey] = id
	return nil
}

// Remove deletes an unreferenced status. Fails with STATUS_IN_USE while any
// instance node references it.
func (r *StatusRegistry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	status, ok := r.byID[id]
	if !ok {
		return NewValidationError(fmt.Sprintf("status not found: %s", id), nil).
			WithCode(ErrCodeUnknownStatus)
	}
	if r.refs[id] > 0 {
		return NewConflictError(
			fmt.Sprintf("status %q is referenced by %d instance nodes", status.Name, r.refs[id]), nil).
			WithCode(ErrCodeStatusInUse).
			WithDetail("references", r.refs[id])
	}

	delete(r.byID, id)
	delete(r.byKey, statusKey{name: status.Name, kind: status.Kind})
	ids := r.byKind[status.Kind]
	for i, sid := range ids {
		if sid == id {
			r.byKind[status.Kind] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	delete(r.refs, id)
	return nil
}

// addRef records one more instance node referencing the status.
func (r *StatusRegistry) addRef(id string) {
	r.mu.Lock()
	r.refs[id]++
	r.mu.Unlock()
}

// dropRef releases one instance node reference.
func (r *StatusRegistry) dropRef(id string) {
	r.mu.Lock()
	if r.refs[id] > 0 {
		r.refs[id]--
	}
	r.mu.Unlock()
}

// RefCount returns the number of instance nodes referencing a status.
func (r *StatusRegistry) RefCount(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs[id]
}

// seedStatus describes one default status for seeding.
type seedStatus struct {
	name     string
	category StatusCategory
	color    string
}

// defaultSeeds maps entity kinds to their seed catalog. Containers use
// planning-flavored names; graph nodes use the canonical names.
var defaultSeeds = map[EntityKind][]seedStatus{
	KindMigration: {
		{"PLANNING", CategoryPending, "#FFA500"},
		{"IN_PROGRESS", CategoryInProgress, "#0052CC"},
		{"COMPLETED", CategoryCompleted, "#00875A"},
		{"FAILED", CategoryFailed, "#DE350B"},
		{"ON_HOLD", CategoryBlocked, "#6554C0"},
		{"CANCELLED", CategoryCancelled, "#6B778C"},
	},
	KindIteration: {
		{"PLANNING", CategoryPending, "#FFA500"},
		{"IN_PROGRESS", CategoryInProgress, "#0052CC"},
		{"COMPLETED", CategoryCompleted, "#00875A"},
		{"FAILED", CategoryFailed, "#DE350B"},
		{"ON_HOLD", CategoryBlocked, "#6554C0"},
		{"CANCELLED", CategoryCancelled, "#6B778C"},
	},
}

// canonicalSeeds is the seed catalog for graph-node kinds.
var canonicalSeeds = []seedStatus{
	{"PENDING", CategoryPending, "#FFA500"},
	{"IN_PROGRESS", CategoryInProgress, "#0052CC"},
	{"COMPLETED", CategoryCompleted, "#00875A"},
	{"FAILED", CategoryFailed, "#DE350B"},
	{"BLOCKED", CategoryBlocked, "#6554C0"},
	{"CANCELLED", CategoryCancelled, "#6B778C"},
}

// SeedDefaults registers the default status catalog for every entity kind.
// The PENDING-category status is registered first per kind so instantiation
// picks it as the initial status.
func (r *StatusRegistry) SeedDefaults() error {
	for _, kind := range EntityKinds() {
		seeds, ok := defaultSeeds[kind]
		if !ok {
			seeds = canonicalSeeds
		}
		for _, s := range seeds {
			if _, err := r.Register(s.name, kind, s.category, s.color); err != nil {
				return fmt.Errorf("seeding status %s/%s: %w", kind, s.name, err)
			}
		}
	}
	return nil
}
