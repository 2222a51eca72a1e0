// Package delivery holds the long-running entry points started by the application.
package delivery

import "context"

// Delivery is a server or background loop started once the fx graph is built.
// Serve blocks until the delivery stops.
type Delivery interface {
	Serve(ctx context.Context) error
}
