package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTransient marks a navigation or selector timeout: retryable in place,
// the page itself is still usable.
var ErrTransient = errors.New("browser: transient page error")

// ErrStale marks a detached DOM, crashed target, or closed page: the page
// is gone and the caller must acquire a fresh one before continuing.
var ErrStale = errors.New("browser: stale page")

// staleMarkers are substrings seen in CDP-level failures when the target
// or its websocket has gone away underneath us.
var staleMarkers = []string{
	"target closed",
	"session closed",
	"page closed",
	"context was destroyed",
	"cannot find context",
	"websocket: close",
	"use of closed network connection",
	"target crashed",
	"node not found",
	"object not found",
}

// classify wraps err as ErrTransient or ErrStale so callers can decide
// between in-place retry and page recovery with errors.Is.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStale) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s: %v", ErrStale, op, err)
		}
	}
	// Unknown browser-level failures are treated as transient: the bounded
	// retry/recovery ladder above decides when to give up.
	return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
}

// IsStale reports whether err indicates a dead page.
func IsStale(err error) bool { return errors.Is(err, ErrStale) }

// IsTransient reports whether err indicates a retryable timeout.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }
