package index

import (
	"crypto/subtle"

	"github.com/dshills/skillindex/pkg/types"
)

// CheckAPIKey gates administrative operations. An empty configured key
// disables them entirely.
func CheckAPIKey(configured, provided string) error {
	if configured == "" {
		return types.ErrAdminDisabled
	}
	if subtle.ConstantTimeCompare([]byte(configured), []byte(provided)) != 1 {
		return types.ErrUnauthorized
	}
	return nil
}
