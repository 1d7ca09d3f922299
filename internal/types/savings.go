package types

import (
	"math/big"
	"time"
)

// SavingsRecord tracks the accumulated savings for one (user, asset) pair.
// Balance only grows on diversion and shrinks on withdrawal; a withdrawal
// below zero is rejected with ErrInsufficientSavings before any mutation.
type SavingsRecord struct {
	Balance    *big.Int
	TotalSaved *big.Int
	LastSaved  time.Time
	UnlockedAt time.Time
}

// NewSavingsRecord returns an empty record with zeroed amounts.
func NewSavingsRecord() SavingsRecord {
	return SavingsRecord{
		Balance:    big.NewInt(0),
		TotalSaved: big.NewInt(0),
	}
}

// Copy returns a deep copy so callers cannot mutate shared big.Int pointers.
func (r SavingsRecord) Copy() SavingsRecord {
	clone := r
	if r.Balance != nil {
		clone.Balance = new(big.Int).Set(r.Balance)
	}
	if r.TotalSaved != nil {
		clone.TotalSaved = new(big.Int).Set(r.TotalSaved)
	}
	return clone
}
