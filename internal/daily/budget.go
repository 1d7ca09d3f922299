package daily

// Budget tracks the resource units still available to one processor call.
// The processor checks affordability before every batch and every item and
// degrades to a partial result instead of running out mid-item.
type Budget struct {
	remaining uint64
}

func NewBudget(units uint64) *Budget {
	return &Budget{remaining: units}
}

func (b *Budget) Remaining() uint64 { return b.remaining }

// Affords reports whether the budget still covers an item of the given
// estimated cost.
func (b *Budget) Affords(estimate uint64) bool {
	return b.remaining >= estimate
}

// Consume deducts the actual cost of a completed item, saturating at zero.
func (b *Budget) Consume(actual uint64) {
	if actual > b.remaining {
		b.remaining = 0
		return
	}
	b.remaining -= actual
}

// estimator smooths per-item cost observations. Upward surprises move the
// estimate by a quarter of the error; costs well below the estimate pull it
// down by half the gap; anything in between leaves it alone.
type estimator struct {
	estimate uint64
}

func newEstimator(initial uint64) *estimator {
	if initial == 0 {
		initial = 1
	}
	return &estimator{estimate: initial}
}

func (e *estimator) current() uint64 { return e.estimate }

func (e *estimator) observe(actual uint64) {
	switch {
	case actual > e.estimate:
		e.estimate += (actual - e.estimate) / 4
	case actual*10 < e.estimate*8:
		e.estimate = (e.estimate + actual) / 2
	}
	if e.estimate == 0 {
		e.estimate = 1
	}
}
