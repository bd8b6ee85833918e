//go:build !linux

package raspberry

import "errors"

var errUnsupported = errors.New("gpio is only supported on linux")

func requestOutput(string, int) (output, error) {
	return nil, errUnsupported
}
