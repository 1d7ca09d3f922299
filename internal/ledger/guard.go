package ledger

import (
	"github.com/spendsave/savings-engine/internal/types"
)

// callGuard rejects a nested call into the same logical operation. The host
// serializes calls, so this only protects against an external collaborator
// calling back into the protocol mid-operation.
type callGuard struct {
	active map[string]bool
}

func newCallGuard() *callGuard {
	return &callGuard{active: make(map[string]bool)}
}

// enter marks op as in flight and returns the release. Callers defer the
// release immediately so every exit path, including error returns, clears
// the flag.
func (g *callGuard) enter(op string) (func(), error) {
	if g.active[op] {
		return nil, types.ErrReentrantCall
	}
	g.active[op] = true
	return func() { delete(g.active, op) }, nil
}
