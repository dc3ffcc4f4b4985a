package pager

// SubjectPager holds items pushed by its owner. FetchAt never causes a fetch.
type SubjectPager[T Item] struct {
	*base[T]
}

// NewSubjectPager creates an empty pager. Items appear on the first Next.
func NewSubjectPager[T Item](cfg Config) *SubjectPager[T] {
	return &SubjectPager[T]{base: newBase[T](cfg)}
}

// Next replaces the pager's items. The size becomes len(items).
func (p *SubjectPager[T]) Next(items []T) {
	if limit := p.cfg.MaxSize; limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	snapshot := make([]T, len(items))
	copy(snapshot, items)
	p.update(snapshot, len(snapshot))
}
