package app

import (
	"errors"
	"fmt"
	"os"
	"time"
)

var ErrSurvivedSignal = errors.New("process still running after termination signal")

// SignalSelf delivers sig to the running process.
func SignalSelf(sig os.Signal) error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return fmt.Errorf("cannot find own process: %w", err)
	}
	if err := p.Signal(sig); err != nil {
		return fmt.Errorf("cannot deliver %v: %w", sig, err)
	}
	return nil
}

// TerminateSelf delivers sig and waits for it to end the process. Delivery is
// asynchronous, so the caller must not return before the signal lands; if it
// has not within grace, ErrSurvivedSignal is returned.
func TerminateSelf(sig os.Signal, grace time.Duration) error {
	if err := SignalSelf(sig); err != nil {
		return err
	}
	time.Sleep(grace)
	return fmt.Errorf("%v: %w", sig, ErrSurvivedSignal)
}
