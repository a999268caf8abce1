package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

// Chain consults Secondary when Primary fails or does not hold the key.
type Chain struct {
	Primary   Store
	Secondary Store
}

// Get implements Store. A key missing from both stores is reported as
// synth.ErrCredentialMissing.
func (c Chain) Get(ctx context.Context, key string) (string, error) {
	if c.Primary != nil {
		value, err := c.Primary.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			log.Warn("Primary credential store failed, trying fallback", "error", err)
		}
	}

	if c.Secondary != nil {
		value, err := c.Secondary.Get(ctx, key)
		if err == nil {
			return value, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !errors.Is(err, ErrNotFound) {
			return "", fmt.Errorf("%w: %w", synth.ErrCredentialMissing, err)
		}
	}

	return "", synth.ErrCredentialMissing
}

// Resolve picks the store to use for the rest of the process. The first
// store already holding key wins; if neither does, the chain itself is
// returned so a key stored later is still found.
func Resolve(ctx context.Context, primary, secondary Store, key string) Store {
	for _, candidate := range []struct {
		name  string
		store Store
	}{
		{"config", primary},
		{"file", secondary},
	} {
		if candidate.store == nil {
			continue
		}
		if _, err := candidate.store.Get(ctx, key); err == nil {
			log.Debug("Resolved credential store", "store", candidate.name)
			return candidate.store
		} else if !errors.Is(err, ErrNotFound) {
			log.Warn("Credential store unavailable", "store", candidate.name, "error", err)
		}
	}

	log.Debug("No credential stored yet, using fallback chain")
	return Chain{Primary: primary, Secondary: secondary}
}
