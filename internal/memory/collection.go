package memory

// collection is an insertion-ordered keyed set of entities. It is not safe for
// concurrent use on its own; Store serializes access.
type collection[T any] struct {
	rows  map[string]T
	order []string
}

func newCollection[T any]() *collection[T] {
	return &collection[T]{rows: make(map[string]T)}
}

func (c *collection[T]) get(id string) (T, bool) {
	row, ok := c.rows[id]
	return row, ok
}

func (c *collection[T]) put(id string, row T) {
	if _, exists := c.rows[id]; !exists {
		c.order = append(c.order, id)
	}
	c.rows[id] = row
}

// each walks rows in insertion order until fn returns false.
func (c *collection[T]) each(fn func(T) bool) {
	for _, id := range c.order {
		if !fn(c.rows[id]) {
			return
		}
	}
}

func (c *collection[T]) snapshot() *collection[T] {
	clone := &collection[T]{
		rows:  make(map[string]T, len(c.rows)),
		order: make([]string, len(c.order)),
	}
	for id, row := range c.rows {
		clone.rows[id] = row
	}
	copy(clone.order, c.order)
	return clone
}
