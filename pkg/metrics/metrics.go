package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "sitedeploy"
	subsystem = "client"

	StatusOK    = "ok"
	StatusError = "error"

	LabelStatus    = "status"
	LabelStage     = "stage"
	LabelAssetType = "asset_type"
)

// Registry holds every client metric. It is kept separate from the default
// registry so that a push only contains metrics from the deploy itself.
var Registry = prometheus.NewRegistry()

func statusLabel(err error) string {
	if err == nil {
		return StatusOK
	}
	return StatusError
}

func AssetHashed(assetType string) {
	assetsHashed.With(prometheus.Labels{
		LabelAssetType: assetType,
	}).Inc()
}

func AssetUploaded(assetType string, attempts int, err error) {
	labels := prometheus.Labels{
		LabelAssetType: assetType,
		LabelStatus:    statusLabel(err),
	}
	uploads.With(labels).Inc()
	if attempts > 1 {
		uploadRetries.With(prometheus.Labels{LabelAssetType: assetType}).Add(float64(attempts - 1))
	}
}

func StageFinished(stage string, t time.Time, err error) {
	elapsed := time.Since(t)
	stageDuration.With(prometheus.Labels{
		LabelStage:  stage,
		LabelStatus: statusLabel(err),
	}).Observe(elapsed.Seconds())
}

func RequiredAssets(files, functions int) {
	requiredAssets.With(prometheus.Labels{LabelAssetType: "file"}).Set(float64(files))
	requiredAssets.With(prometheus.Labels{LabelAssetType: "function"}).Set(float64(functions))
}

// Push sends all collected metrics to a Prometheus Pushgateway.
func Push(ctx context.Context, url, job string, grouping map[string]string) error {
	pusher := push.New(url, job).Gatherer(Registry)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}
	return pusher.PushContext(ctx)
}

var (
	assetsHashed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "assets_hashed_total",
		Help:      "number of assets hashed",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelAssetType,
		},
	)

	uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "uploads_total",
		Help:      "number of assets uploaded, partitioned by outcome",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelAssetType,
			LabelStatus,
		},
	)

	uploadRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:      "upload_retries_total",
		Help:      "number of upload attempts that were retried after a transient error",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelAssetType,
		},
	)

	requiredAssets = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "required_assets",
		Help:      "number of assets the deploy service requested",
		Namespace: namespace,
		Subsystem: subsystem,
	},
		[]string{
			LabelAssetType,
		},
	)

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:      "stage_duration_seconds",
		Help:      "time spent in each deploy pipeline stage",
		Namespace: namespace,
		Subsystem: subsystem,
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16),
	},
		[]string{
			LabelStage,
			LabelStatus,
		},
	)
)

func init() {
	Registry.MustRegister(assetsHashed)
	Registry.MustRegister(uploads)
	Registry.MustRegister(uploadRetries)
	Registry.MustRegister(requiredAssets)
	Registry.MustRegister(stageDuration)
}
