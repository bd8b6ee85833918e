//go:build linux

package raspberry

import (
	"github.com/warthog618/gpiod"
)

// gpiodOutput keeps the chip open as long as the line is requested.
type gpiodOutput struct {
	chip *gpiod.Chip
	*gpiod.Line
}

// requestOutput opens the gpio character device and requests line as output.
func requestOutput(chip string, line int) (output, error) {
	c, err := gpiod.NewChip(chip, gpiod.WithConsumer("dqlog"))
	if err != nil {
		return nil, err
	}

	l, err := c.RequestLine(line, gpiod.AsOutput(0))
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	return &gpiodOutput{chip: c, Line: l}, nil
}

// Close releases the line and the chip.
func (o *gpiodOutput) Close() error {
	err := o.Line.Close()
	if e := o.chip.Close(); err == nil {
		err = e
	}
	return err
}
