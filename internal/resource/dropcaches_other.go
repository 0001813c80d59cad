//go:build !linux

package resource

import "errors"

// dropCaches has no portable equivalent off Linux.
func dropCaches() error {
	return errors.New("cache drop not supported on this platform")
}
