//go:build !linux && !darwin

package driver

import "github.com/pkg/errors"

// Open is unavailable where the CUDA driver library cannot be resolved.
func Open() (Driver, error) {
	return nil, errors.New("the CUDA driver library is not available on this platform")
}
