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

func Start(ctx context.Context, elems ...Startable) {
	for _, ele := range elems {
		if configurable, ok := ele.(Configurable); ok && config.Global != nil {
			configurable.Apply(config.Global)
		}
		ele.Start(ctx)
	}
}

type Stopable interface {
	Stop()
}

// Stop stops elems in reverse order.
func Stop(elems ...Stopable) {
	for i := len(elems) - 1; i >= 0; i-- {
		elems[i].Stop()
	}
}
