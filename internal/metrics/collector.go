package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector holds scan and decode counters that the CLI tools record
// against and can optionally dump. It is read-only from the outside
// world: nothing in this package starts a listener or serves HTTP.
type Collector struct {
	registry *prometheus.Registry

	decodesTotal          *prometheus.CounterVec
	checksumFailuresTotal *prometheus.CounterVec
	cacheRequestsTotal    *prometheus.CounterVec
	bytesReadTotal        prometheus.Counter
}

// NewCollector builds a Collector with its counters registered against
// a fresh registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.decodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keramics",
			Name:      "decodes_total",
			Help:      "Total number of format decode attempts, by format and outcome.",
		},
		[]string{"format", "status"},
	)
	c.checksumFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keramics",
			Name:      "checksum_failures_total",
			Help:      "Total number of checksum or signature validation failures, by format.",
		},
		[]string{"format"},
	)
	c.cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "keramics",
			Name:      "cache_requests_total",
			Help:      "Total number of VFS resolver cache lookups, by result.",
		},
		[]string{"result"},
	)
	c.bytesReadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "keramics",
			Name:      "bytes_read_total",
			Help:      "Total number of bytes read from underlying data streams during scanning and decoding.",
		},
	)

	c.registry.MustRegister(
		c.decodesTotal,
		c.checksumFailuresTotal,
		c.cacheRequestsTotal,
		c.bytesReadTotal,
	)
	return c
}

// RecordDecode records one attempt to decode format, successful or not.
func (c *Collector) RecordDecode(format string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.decodesTotal.WithLabelValues(format, status).Inc()
}

// RecordChecksumFailure records a failed checksum or signature check
// encountered while decoding format.
func (c *Collector) RecordChecksumFailure(format string) {
	c.checksumFailuresTotal.WithLabelValues(format).Inc()
}

// RecordCacheHit records a resolver cache lookup that found its entry.
func (c *Collector) RecordCacheHit() {
	c.cacheRequestsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a resolver cache lookup that did not find
// its entry and had to open the location fresh.
func (c *Collector) RecordCacheMiss() {
	c.cacheRequestsTotal.WithLabelValues("miss").Inc()
}

// RecordBytesRead adds n to the running count of bytes read from
// underlying streams.
func (c *Collector) RecordBytesRead(n int64) {
	if n > 0 {
		c.bytesReadTotal.Add(float64(n))
	}
}

// DumpText renders every registered metric in the Prometheus text
// exposition format, for a CLI flag that prints counters after a run
// rather than for any long-lived scrape target.
func (c *Collector) DumpText() (string, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gathering metrics: %w", err)
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", fmt.Errorf("encoding metrics: %w", err)
		}
	}
	return buf.String(), nil
}
