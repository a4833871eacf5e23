package syncer

import (
	"slices"
	"time"
)

// Collection is an immutable list of documents keyed by id. Every update
// returns a new Collection and leaves the receiver untouched, so a State
// handed out to readers never changes underneath them.
type Collection[T any] struct {
	items []T
	key   func(T) string
	stamp func(T) time.Time
}

func NewCollection[T any](key func(T) string, stamp func(T) time.Time, items ...T) Collection[T] {
	return Collection[T]{items: slices.Clone(items), key: key, stamp: stamp}
}

func (c Collection[T]) Len() int { return len(c.items) }

// Items returns a copy of the documents in arrival order.
func (c Collection[T]) Items() []T { return slices.Clone(c.items) }

func (c Collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(v T) bool { return c.key(v) == id })
}

func (c Collection[T]) Get(id string) (T, bool) {
	if i := c.index(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Upsert inserts doc or replaces the document with the same id. A doc older
// than the one held is ignored and ok is false.
func (c Collection[T]) Upsert(doc T) (out Collection[T], ok bool) {
	return c.put(doc, false)
}

func (c Collection[T]) put(doc T, force bool) (Collection[T], bool) {
	i := c.index(c.key(doc))
	if i < 0 {
		c.items = append(slices.Clip(c.items), doc)
		return c, true
	}
	if !force && c.stamp(doc).Before(c.stamp(c.items[i])) {
		return c, false
	}
	items := slices.Clone(c.items)
	items[i] = doc
	c.items = items
	return c, true
}

// Remove drops the document with id; ok is false when it was absent.
func (c Collection[T]) Remove(id string) (Collection[T], bool) {
	i := c.index(id)
	if i < 0 {
		return c, false
	}
	c.items = slices.Delete(slices.Clone(c.items), i, i+1)
	return c, true
}

// Filter keeps the documents keep accepts.
func (c Collection[T]) Filter(keep func(T) bool) Collection[T] {
	out := make([]T, 0, len(c.items))
	for _, v := range c.items {
		if keep(v) {
			out = append(out, v)
		}
	}
	c.items = out
	return c
}
