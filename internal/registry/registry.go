// Package registry holds the live set of on-field entities for one round.
package registry

import (
	"errors"

	"popreveal/internal/field"
)

var (
	// ErrNotFound reports a removal of an id that is not live.
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateID reports an insertion of an id that is live or was removed this round.
	ErrDuplicateID = errors.New("entity id already used this round")
)

// Registry is an ordered collection of entities keyed by id. Ids that were
// removed stay retired until Clear, so a late duplicate tap can never hit a
// different entity. It is not safe for concurrent use.
type Registry struct {
	order   []string
	live    map[string]field.Entity
	retired map[string]struct{}
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		live:    make(map[string]field.Entity),
		retired: make(map[string]struct{}),
	}
}

// Insert appends a batch in order. Entities whose id is live or retired are
// skipped and each one is reported in the joined error, which matches
// ErrDuplicateID. The rest of the batch is still inserted.
func (r *Registry) Insert(batch []field.Entity) error {
	var err error
	for _, e := range batch {
		if r.used(e.ID) {
			err = errors.Join(err, duplicate(e.ID))
			continue
		}
		r.live[e.ID] = e
		r.order = append(r.order, e.ID)
	}
	return err
}

// Replenish adds replacement entities during play.
func (r *Registry) Replenish(batch []field.Entity) error {
	return r.Insert(batch)
}

// Replace drops every live entity, forgets retired ids and inserts batch.
func (r *Registry) Replace(batch []field.Entity) error {
	r.Clear()
	return r.Insert(batch)
}

// Remove deletes and returns the entity with id. A second removal of the
// same id returns ErrNotFound.
func (r *Registry) Remove(id string) (field.Entity, error) {
	e, ok := r.live[id]
	if !ok {
		return field.Entity{}, ErrNotFound
	}
	delete(r.live, id)
	r.retired[id] = struct{}{}
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, nil
}

// used reports whether id is live or was removed earlier in the round.
func (r *Registry) used(id string) bool {
	if _, ok := r.live[id]; ok {
		return true
	}
	_, ok := r.retired[id]
	return ok
}

// Len returns the number of live entities.
func (r *Registry) Len() int {
	return len(r.order)
}

// IsEmpty reports whether no entities remain.
func (r *Registry) IsEmpty() bool {
	return len(r.order) == 0
}

// Entities returns a snapshot of the live entities in insertion order.
func (r *Registry) Entities() []field.Entity {
	out := make([]field.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.live[id])
	}
	return out
}

// Clear empties the registry and forgets retired ids.
func (r *Registry) Clear() {
	r.order = nil
	r.live = make(map[string]field.Entity)
	r.retired = make(map[string]struct{})
}

func duplicate(id string) error {
	return &DuplicateError{ID: id}
}

// DuplicateError names the rejected id. It matches ErrDuplicateID.
type DuplicateError struct {
	ID string
}

func (e *DuplicateError) Error() string {
	return "entity " + e.ID + ": " + ErrDuplicateID.Error()
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateID
}
