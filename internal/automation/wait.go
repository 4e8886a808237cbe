package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	. "drover/internal/logging"
)

// waitPollInterval is the pause between condition probes.
const waitPollInterval = 500 * time.Millisecond

// WaitForText polls until the page's accessible text contains text, or
// the timeout elapses. Each probe takes a fresh verbose snapshot and
// scans its rendered outline, so the check sees exactly what a
// snapshot caller would see. The condition is checked at least once
// even with a zero timeout.
func (c *Context) WaitForText(ctx context.Context, text string, timeout time.Duration) error {
	probe := func(ctx context.Context) (bool, error) {
		snap, err := c.CaptureSnapshot(ctx, true)
		if err != nil {
			return false, err
		}
		return strings.Contains(snap.Format(), text), nil
	}
	return c.waitFor(ctx, probe, fmt.Sprintf("text %q", text), timeout)
}

// WaitForElement polls until a CSS selector matches at least one
// element, or the timeout elapses.
func (c *Context) WaitForElement(ctx context.Context, selector string, timeout time.Duration) error {
	literal, _ := json.Marshal(selector)
	script := fmt.Sprintf("!!document.querySelector(%s)", literal)
	probe := func(ctx context.Context) (bool, error) {
		result, err := c.EvaluateScript(ctx, script, nil)
		if err != nil {
			return false, err
		}
		truthy, ok := result.(bool)
		return ok && truthy, nil
	}
	return c.waitFor(ctx, probe, fmt.Sprintf("element %q", selector), timeout)
}

// waitFor runs a boolean probe on the poll interval. Probe errors are
// tolerated as transient (the page may be mid-navigation) unless the
// binding itself is gone.
func (c *Context) waitFor(ctx context.Context, probe func(context.Context) (bool, error), condition string, timeout time.Duration) error {
	if _, err := c.boundTarget(); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for {
		found, err := probe(ctx)
		if err != nil {
			if KindOf(err) == KindNoActiveView {
				return err
			}
			L_trace("wait probe failed, retrying: %v", err)
		} else if found {
			return nil
		}

		if !time.Now().Before(deadline) {
			return errTimeout(condition)
		}
		select {
		case <-ctx.Done():
			return errCommandFailed(ctx.Err())
		case <-time.After(waitPollInterval):
		}
	}
}
