// Package nav relays imperative navigation resets from non-UI code into the
// running UI event loop.
package nav

import (
	"log/slog"
	"sync"
)

// Route names a top-level destination.
type Route string

const (
	RouteLogin     Route = "login"
	RouteDashboard Route = "dashboard"
)

// ResetMsg is delivered to the UI when navigation is reset. The UI replaces
// its whole screen stack with the named route.
type ResetMsg struct {
	Route Route
}

// Controller is the narrow navigation capability handed to the boot gate and
// the session manager. ResetTo is a tolerated no-op until Attach has wired the
// controller to a running UI.
type Controller struct {
	logger *slog.Logger

	mu   sync.Mutex
	send func(ResetMsg)
}

func NewController(logger *slog.Logger) *Controller {
	return &Controller{logger: logger}
}

// Attach wires the controller to the UI's message queue. Called once the UI
// program is running; resets requested before that are dropped.
func (c *Controller) Attach(send func(ResetMsg)) {
	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
}

// ResetTo replaces the UI's screen stack with route. Safe to call from any
// goroutine and before the UI exists.
func (c *Controller) ResetTo(route Route) {
	c.mu.Lock()
	send := c.send
	c.mu.Unlock()

	if send == nil {
		if c.logger != nil {
			c.logger.Debug("navigation reset before UI attach", "route", route)
		}
		return
	}
	send(ResetMsg{Route: route})
}
