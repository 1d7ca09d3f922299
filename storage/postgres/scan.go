package postgres

import (
	"fmt"
	"math/big"
	"time"
)

// Amounts travel as NUMERIC(78,0) text to keep full 256-bit precision.
func bigToNumeric(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func numericToBig(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}

func timeToNullable(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func nullableToTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}
