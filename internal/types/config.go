package types

import "fmt"

const (
	// MaxBasisPoints is the denominator for every percentage in the system.
	MaxBasisPoints = 10_000

	// MaxTreasuryFeeBps caps the protocol fee at configuration time.
	MaxTreasuryFeeBps = 1_000

	// DefaultTreasuryFeeBps is the protocol fee applied to every diversion
	// unless reconfigured by the owner.
	DefaultTreasuryFeeBps = 80
)

// SavingsTokenType selects which side of an exchange the diversion is taken
// from. The zero value is INPUT.
type SavingsTokenType uint8

const (
	SavingsTokenInput SavingsTokenType = iota
	SavingsTokenOutput
	SavingsTokenSpecific
)

func (t SavingsTokenType) String() string {
	switch t {
	case SavingsTokenInput:
		return "INPUT"
	case SavingsTokenOutput:
		return "OUTPUT"
	case SavingsTokenSpecific:
		return "SPECIFIC"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// UserConfig is a user's savings strategy. It is persisted as a single
// packed word, see internal/codec.
type UserConfig struct {
	PercentageBps    uint16 `json:"percentage_bps" validate:"lte=10000"`
	AutoIncrementBps uint16 `json:"auto_increment_bps" validate:"lte=10000"`
	MaxPercentageBps uint16 `json:"max_percentage_bps" validate:"lte=10000"`
	RoundUp          bool   `json:"round_up"`
	DCAEnabled       bool   `json:"dca_enabled"`
	TokenType        SavingsTokenType `json:"token_type"`
}

// HasStrategy reports whether the config would divert anything at all.
func (c UserConfig) HasStrategy() bool {
	return c.PercentageBps > 0
}

// Validate enforces percentage <= maxPercentage <= 10000.
func (c UserConfig) Validate() error {
	if c.MaxPercentageBps > MaxBasisPoints {
		return fmt.Errorf("%w: max percentage %d exceeds %d bps", ErrInvalidInput, c.MaxPercentageBps, MaxBasisPoints)
	}
	if c.PercentageBps > c.MaxPercentageBps {
		return fmt.Errorf("%w: percentage %d exceeds max percentage %d", ErrInvalidInput, c.PercentageBps, c.MaxPercentageBps)
	}
	if c.TokenType > SavingsTokenSpecific {
		return fmt.Errorf("%w: unknown savings token type %d", ErrInvalidInput, c.TokenType)
	}
	return nil
}
