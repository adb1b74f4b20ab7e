package kafka

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// registerCollectors registers producer and consumer collectors on the default
// registry. Collectors already registered by an earlier client are reused.
func registerCollectors(cs ...prometheus.Collector) {
	reg := prometheus.DefaultRegisterer
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				panic(err)
			}
		}
	}
}
