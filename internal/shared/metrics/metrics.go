package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type counter struct {
	name string
	help string
	v    atomic.Uint64
}

var (
	worksUploaded           = &counter{name: "works_uploaded_total", help: "Total works uploaded"}
	worksDeleted            = &counter{name: "works_deleted_total", help: "Total works deleted"}
	reactionsToggled        = &counter{name: "reactions_toggled_total", help: "Total reaction toggles"}
	artifactsMissing        = &counter{name: "artifacts_missing_total", help: "Downloads whose selected artifact was absent from storage"}
	conversionStarted       = &counter{name: "conversion_started_total", help: "Conversions moved to processing"}
	conversionCompleted     = &counter{name: "conversion_completed_total", help: "Conversions completed"}
	conversionFailed        = &counter{name: "conversion_failed_total", help: "Conversions failed"}
	conversionRejected      = &counter{name: "conversion_reports_rejected_total", help: "Conversion reports rejected as invalid transitions"}
	conversionJobsReceived  = &counter{name: "conversion_jobs_received_total", help: "Conversion jobs received from the queue"}
	conversionJobsDiscarded = &counter{name: "conversion_jobs_discarded_total", help: "Conversion jobs dropped as unrecoverable"}
	conversionJobsEnqueued  = &counter{name: "conversion_jobs_enqueued_total", help: "Conversion jobs enqueued"}
	conversionEnqueueFailed = &counter{name: "conversion_jobs_enqueue_failed_total", help: "Conversion jobs that could not be enqueued"}
	panicsRecovered         = &counter{name: "http_panics_recovered_total", help: "Handler panics recovered by middleware"}

	allCounters = []*counter{
		worksUploaded, worksDeleted, reactionsToggled, artifactsMissing,
		conversionStarted, conversionCompleted, conversionFailed, conversionRejected,
		conversionJobsReceived, conversionJobsDiscarded, conversionJobsEnqueued, conversionEnqueueFailed,
		panicsRecovered,
	}

	conversionDuration = newHistogram([]float64{250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000})
)

func IncWorksUploaded()           { worksUploaded.v.Add(1) }
func IncWorksDeleted()            { worksDeleted.v.Add(1) }
func IncReactionsToggled()        { reactionsToggled.v.Add(1) }
func IncArtifactsMissing()        { artifactsMissing.v.Add(1) }
func IncConversionStarted()       { conversionStarted.v.Add(1) }
func IncConversionCompleted()     { conversionCompleted.v.Add(1) }
func IncConversionFailed()        { conversionFailed.v.Add(1) }
func IncConversionRejected()      { conversionRejected.v.Add(1) }
func IncConversionJobsReceived()  { conversionJobsReceived.v.Add(1) }
func IncConversionJobsDiscarded() { conversionJobsDiscarded.v.Add(1) }
func IncConversionJobsEnqueued()  { conversionJobsEnqueued.v.Add(1) }
func IncConversionEnqueueFailed() { conversionEnqueueFailed.v.Add(1) }
func IncPanicsRecovered()         { panicsRecovered.v.Add(1) }

// ObserveConversionDurationMs records a conversion duration in milliseconds.
func ObserveConversionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	conversionDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format, counters sorted by name.
func Render() string {
	sorted := append([]*counter(nil), allCounters...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })

	var buf bytes.Buffer
	for _, c := range sorted {
		writeCounter(&buf, c.name, c.help, c.v.Load())
	}
	writeHistogram(&buf, "conversion_duration_ms", "Conversion duration in milliseconds", conversionDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{buckets: buckets, counts: make([]uint64, len(buckets))}
}

// Observe counts value into the first bucket whose bound holds it.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	idx := sort.SearchFloat64s(h.buckets, value)
	if idx < len(h.counts) {
		h.counts[idx]++
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n# TYPE %s histogram\n", name, help, name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
