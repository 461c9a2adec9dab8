package utils

import (
	"time"
)

// WithTimeout runs payload and reports whether it failed to finish within
// timeout. The payload keeps running in the background after a timeout. A
// non-positive timeout waits for as long as the payload takes.
func WithTimeout(timeout time.Duration, payload func()) bool {
	done := make(chan struct{})

	go func() {
		defer close(done)
		payload()
	}()

	if timeout <= 0 {
		<-done
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return false
	case <-timer.C:
		return true
	}
}
