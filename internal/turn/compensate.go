// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package turn

import "context"

// =============================================================================
// CANCELLATION
// =============================================================================

// Cancel aborts the in-flight turn: the request's context is
// cancelled, shell threads and timers are cleared, and the state
// machine returns to Idle. If the turn provisioned resources, the
// last one is offered for compensating cleanup; otherwise a plain
// stopped notice is shown. Ignored when no turn is in flight.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.state != StateAwaiting {
		c.mu.Unlock()
		return
	}
	c.state = StateCancelling
	// Invalidate every callback from the aborted turn before the
	// transport notices the cancellation.
	c.generation++
	c.mu.Unlock()

	c.sink.StateChanged(StateCancelling)
	c.cancelMgr.cancel()
	c.shells.Reset()

	c.mu.Lock()
	var last *CreatedResource
	if n := len(c.created); n > 0 {
		res := c.created[n-1]
		last = &res
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.sink.StatusChanged("")
	c.sink.StateChanged(StateIdle)

	if last != nil {
		c.sink.PromptCompensation(*last)
	} else {
		c.sink.Notify("Task stopped.")
	}
}

// =============================================================================
// COMPENSATION
// =============================================================================

// compensationActions maps a resource type to its stop/delete action
// pair on the proxy.
func compensationActions(resourceType string) (stop, del string) {
	if resourceType == "vm" {
		return "stop_vm", "delete_vm"
	}
	return "stop_container", "delete_container"
}

// Compensate services the user's answer to the compensation prompt.
// Keeping the resource makes no backend call. Deleting runs the
// stop-action then the delete-action sequentially; the delete is
// skipped when the stop failed at the transport level. The calls run
// on their own goroutine so the UI stays live; progress and outcome
// arrive through the Sink.
func (c *Controller) Compensate(res CreatedResource, del bool) {
	if !del {
		c.sink.Notify(capitalize(res.Describe()) + " was kept.")
		return
	}

	c.sink.StatusChanged("Deleting " + res.Describe() + "...")
	go c.runCompensation(res)
}

func (c *Controller) runCompensation(res CreatedResource) {
	defer c.sink.StatusChanged("")

	ctx := context.Background()
	stopAction, deleteAction := compensationActions(res.Type)
	params := map[string]any{"vmid": res.VMID}

	// A stop that the proxy rejects at the application level (already
	// stopped, never started) still leaves the resource deletable, so
	// only a transport failure blocks the delete.
	if _, err := c.client.Execute(ctx, stopAction, params); err != nil {
		c.sink.Notify("Failed to stop " + res.Describe() + ": " + err.Error())
		return
	}

	result, err := c.client.Execute(ctx, deleteAction, params)
	if err != nil {
		c.sink.Notify("Failed to delete " + res.Describe() + ": " + err.Error())
		return
	}
	if resErr := result.Err(); resErr != nil {
		c.sink.Notify("Failed to delete " + res.Describe() + ": " + resErr.Error())
		return
	}
	c.sink.Notify(capitalize(res.Describe()) + " deleted.")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
