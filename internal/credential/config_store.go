package credential

import (
	"context"
	"strings"

	"github.com/spf13/viper"
)

// ConfigStore reads credentials from viper, so the key can come from the
// config file or from READALOUD_API_KEY.
type ConfigStore struct {
	v *viper.Viper
}

// NewConfigStore creates a store backed by v, or by the global viper
// instance when v is nil.
func NewConfigStore(v *viper.Viper) *ConfigStore {
	if v == nil {
		v = viper.GetViper()
	}
	return &ConfigStore{v: v}
}

// Get implements Store.
func (s *ConfigStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	value := strings.TrimSpace(s.v.GetString(key))
	if value == "" {
		return "", ErrNotFound
	}
	return value, nil
}
