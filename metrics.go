package odm

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// modelMetrics are the per-model counters, labeled {model="<name>"}.
type modelMetrics struct {
	indexLookups *metrics.Counter
	fullScans    *metrics.Counter
	bufferSorts  *metrics.Counter
	loads        *metrics.Counter
	saves        *metrics.Counter
	removes      *metrics.Counter
	rebuilds     *metrics.Counter
}

func newModelMetrics(set *metrics.Set, model string) *modelMetrics {
	counter := func(name string) *metrics.Counter {
		full := fmt.Sprintf(`odm_%s_total{model=%q}`, name, model)
		if set != nil {
			return set.GetOrCreateCounter(full)
		}
		return metrics.GetOrCreateCounter(full)
	}
	return &modelMetrics{
		indexLookups: counter("index_lookups"),
		fullScans:    counter("full_scans"),
		bufferSorts:  counter("buffer_sorts"),
		loads:        counter("record_loads"),
		saves:        counter("record_saves"),
		removes:      counter("record_removes"),
		rebuilds:     counter("index_rebuilds"),
	}
}
