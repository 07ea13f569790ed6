package driver

import (
	"sync"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// The PWM backend and the button share the GPIO mapping. rpio.Open
// and rpio.Close must be paired exactly once, so access is refcounted.
var (
	gpioMu   sync.Mutex
	gpioRefs int
)

func gpioOpen() error {
	gpioMu.Lock()
	defer gpioMu.Unlock()
	if gpioRefs == 0 {
		if err := rpio.Open(); err != nil {
			return err
		}
	}
	gpioRefs++
	return nil
}

func gpioClose() error {
	gpioMu.Lock()
	defer gpioMu.Unlock()
	if gpioRefs == 0 {
		return nil
	}
	gpioRefs--
	if gpioRefs == 0 {
		return rpio.Close()
	}
	return nil
}
