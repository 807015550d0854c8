package syncqueue

import (
	"mgmt-syncq/internal/clock"
	"mgmt-syncq/internal/shared/eventbus"
	"mgmt-syncq/pkg/logging"
)

// Options 各组件共享的依赖
type Options struct {
	Clock    clock.Clock
	Logger   *logging.Logger
	Metrics  *Metrics
	EventBus eventbus.QueueEventBus
}

func (o Options) withDefaults(component string) Options {
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Logger == nil {
		o.Logger = logging.Default("syncqueue")
	}
	o.Logger = o.Logger.Named(component)
	if o.EventBus == nil {
		o.EventBus = eventbus.NewNoOpEventBus()
	}
	return o
}
