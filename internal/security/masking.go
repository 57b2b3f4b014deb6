package security

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cartrita/cartrita/internal/domain"
)

// Masking strategies.
const (
	StrategyRedact  = "redact"
	StrategyHash    = "hash"
	StrategyPartial = "partial"
)

// MaskingRuleStore persists masking rules. (Table, Column) pairs are unique;
// Create fails with ErrDuplicateRule on a second rule for the same pair.
type MaskingRuleStore interface {
	Create(ctx context.Context, rule *domain.MaskingRule) error
	List(ctx context.Context) ([]domain.MaskingRule, error)
	Update(ctx context.Context, rule *domain.MaskingRule) error
	Delete(ctx context.Context, table, column string) error
	// Lookup returns the enabled rule for the pair, or ErrNotFound.
	Lookup(ctx context.Context, table, column string) (*domain.MaskingRule, error)
}

// Masker applies masking rules to column values before they leave the system
// in exports or logs.
type Masker struct {
	rules MaskingRuleStore
}

// NewMasker creates a Masker.
func NewMasker(rules MaskingRuleStore) *Masker {
	return &Masker{rules: rules}
}

// ValidateStrategy rejects strategies outside the known set.
func ValidateStrategy(strategy string) error {
	switch strategy {
	case StrategyRedact, StrategyHash, StrategyPartial:
		return nil
	}
	return fmt.Errorf("invalid masking strategy %q", strategy)
}

// Apply masks the value per the rule for (table, column). Values without an
// enabled rule pass through unchanged.
func (m *Masker) Apply(ctx context.Context, table, column, value string) (string, error) {
	rule, err := m.rules.Lookup(ctx, table, column)
	if err != nil {
		if err == ErrNotFound {
			return value, nil
		}
		return "", fmt.Errorf("looking up masking rule: %w", err)
	}
	return Mask(rule.Strategy, value), nil
}

// Mask applies one strategy to a value.
func Mask(strategy, value string) string {
	switch strategy {
	case StrategyRedact:
		return "[REDACTED]"
	case StrategyHash:
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:])[:16]
	case StrategyPartial:
		// Keep the first and last two characters; short values redact fully.
		if len(value) <= 4 {
			return strings.Repeat("*", len(value))
		}
		return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
	default:
		return "[REDACTED]"
	}
}
