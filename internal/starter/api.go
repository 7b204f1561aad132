package starter

import (
	"context"

	"moff.io/moff-wallet/internal/config"
)

type Startable interface {
	Start(ctx context.Context)
}

type Configurable interface {
	Apply(*config.Configuration)
}

type Stopable interface {
	Stop()
}

// Start applies config.Global to configurable elements and starts them in order.
func Start(ctx context.Context, elems ...Startable) {
	StartWith(ctx, config.Global, elems...)
}

func StartWith(ctx context.Context, c *config.Configuration, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok {
			configurable.Apply(c)
		}
		ele.Start(ctx)
	}
}

// Stop stops the stopable elements in reverse order.
func Stop(elems ...Startable) {
	for i := len(elems) - 1; i >= 0; i-- {
		if stopable, ok := elems[i].(Stopable); ok {
			stopable.Stop()
		}
	}
}
