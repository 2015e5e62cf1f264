package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job label batch runs push under.
const PushJob = "sadcompare_batch"

// pipelineCollectors are the metrics a batch run records.
var pipelineCollectors = []prometheus.Collector{
	DatasetRunsTotal,
	SitesProcessedTotal,
	WinsTotal,
	DatasetDuration,
	BatchDuration,
}

// PushPipeline replaces the batch metrics group on the Pushgateway at url
// with the current pipeline metrics.
func PushPipeline(ctx context.Context, url string) error {
	p := push.New(url, PushJob)
	for _, c := range pipelineCollectors {
		p = p.Collector(c)
	}
	return p.PushContext(ctx)
}
