package monitoring

import (
	"context"
	"fmt"

	"github.com/paveg/ecomlake/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// JobName is the Pushgateway job label.
const JobName = "ecomlake"

// WriteTextfile writes every metric to path in the text exposition format,
// for the node exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Push sends every metric to the Pushgateway at url, replacing the metrics
// previously pushed for the job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	if m == nil {
		return nil
	}
	err := push.New(url, JobName).
		Gatherer(m.Registry).
		Grouping("version", version.Version).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing metrics: %w", err)
	}
	return nil
}
