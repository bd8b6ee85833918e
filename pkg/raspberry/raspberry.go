// Package raspberry drives the activity led of the logger on a gpio line.
package raspberry

import (
	"fmt"
	"sync"
)

var ErrInvalidParam = fmt.Errorf("invalid parameters")

// output is a requested gpio output line.
type output interface {
	SetValue(int) error
	Close() error
}

// LED is an output line toggled on activity.
type LED struct {
	mu    sync.Mutex
	line  output
	value int
}

// OpenLED requests line of the gpio chip as output, initially off.
func OpenLED(chip string, line int) (*LED, error) {
	if chip == "" || line < 0 {
		return nil, ErrInvalidParam
	}

	l, err := requestOutput(chip, line)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, line, err)
	}
	return &LED{line: l}, nil
}

// Toggle inverts the led.
func (l *LED) Toggle() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.value ^= 1
	return l.line.SetValue(l.value)
}

// Close switches the led off and releases the line.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.line.SetValue(0)
	return l.line.Close()
}
