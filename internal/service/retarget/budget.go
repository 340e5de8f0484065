package retarget

import (
	"context"
	"time"
)

// SpendReader is the slice of the campaign repository the budget guard needs.
type SpendReader interface {
	SpendSince(ctx context.Context, since time.Time) (float64, error)
}

// Budget enforces the rolling weekly spend cap. It is a pure read over the
// campaign cost ledger; nothing here mutates state.
type Budget struct {
	spend   SpendReader
	cap     float64
	cadence Cadence
	now     func() time.Time
}

// NewBudget creates a budget guard with the given weekly cap.
func NewBudget(spend SpendReader, weeklyCap float64, cadence Cadence) *Budget {
	return &Budget{spend: spend, cap: weeklyCap, cadence: cadence, now: time.Now}
}

// Available reports whether the current calendar week (Monday 00:00 in the
// business zone) still has budget headroom.
func (b *Budget) Available(ctx context.Context) (bool, error) {
	weekStart := b.cadence.StartOfWeek(b.now())
	total, err := b.spend.SpendSince(ctx, weekStart)
	if err != nil {
		return false, err
	}
	return total < b.cap, nil
}

// WeeklySpend returns the spend accumulated in the current calendar week.
func (b *Budget) WeeklySpend(ctx context.Context) (float64, error) {
	return b.spend.SpendSince(ctx, b.cadence.StartOfWeek(b.now()))
}
