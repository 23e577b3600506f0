package domain

// Ref is a reference to an entity that is either unresolved (id only)
// or resolved (id plus the loaded entity). The zero value is an empty reference.
type Ref[T any] struct {
	id     int64
	entity *T
}

// RefTo returns an unresolved reference.
func RefTo[T any](id int64) Ref[T] {
	return Ref[T]{id: id}
}

// Resolved returns a reference carrying the loaded entity.
func Resolved[T any](id int64, entity *T) Ref[T] {
	return Ref[T]{id: id, entity: entity}
}

// ID returns the referenced id, 0 for an empty reference.
func (r Ref[T]) ID() int64 { return r.id }

// IsZero reports whether the reference points nowhere.
func (r Ref[T]) IsZero() bool { return r.id == 0 }

// Entity returns the resolved entity, if any.
func (r Ref[T]) Entity() (*T, bool) {
	return r.entity, r.entity != nil
}

// Ptr returns the id as a nullable value for storage.
func (r Ref[T]) Ptr() *int64 {
	if r.id == 0 {
		return nil
	}
	id := r.id
	return &id
}

// RefFromPtr builds a reference from a nullable stored id.
func RefFromPtr[T any](id *int64) Ref[T] {
	if id == nil {
		return Ref[T]{}
	}
	return Ref[T]{id: *id}
}
