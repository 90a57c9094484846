package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type errorKey struct {
	handler string
	method  string
}

type latencyKey struct {
	handler string
	method  string
}

type submissionKey struct {
	outcome string
	valid   string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu       sync.Mutex
	requests map[requestKey]uint64
	errors   map[errorKey]uint64
	latency  map[latencyKey]*histogram

	submissions   map[submissionKey]uint64
	submitLatency map[string]*histogram
	batches       uint64
	batchProofs   uint64
	batchSuccess  uint64
}

var registryCollector = &collector{
	requests:      make(map[requestKey]uint64),
	errors:        make(map[errorKey]uint64),
	latency:       make(map[latencyKey]*histogram),
	submissions:   make(map[submissionKey]uint64),
	submitLatency: make(map[string]*histogram),
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	registryCollector.observeHTTP(handler, method, status, duration)
}

// ObserveSubmission records the outcome of a single proof submission.
// outcome is either "OK" or the rejection error code.
func ObserveSubmission(outcome string, valid bool, duration time.Duration) {
	registryCollector.observeSubmission(outcome, valid, duration)
}

// ObserveBatch records an accepted batch call with its size and success count.
func ObserveBatch(size, successful int) {
	registryCollector.observeBatch(size, successful)
}

func (c *collector) observeHTTP(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqKey := requestKey{handler: handler, method: method, code: strconv.Itoa(status)}
	c.requests[reqKey]++
	if status >= 500 {
		errKey := errorKey{handler: handler, method: method}
		c.errors[errKey]++
	}

	latKey := latencyKey{handler: handler, method: method}
	hist := c.latency[latKey]
	if hist == nil {
		hist = newHistogram()
		c.latency[latKey] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeSubmission(outcome string, valid bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := submissionKey{outcome: outcome, valid: strconv.FormatBool(valid)}
	c.submissions[key]++

	hist := c.submitLatency[outcome]
	if hist == nil {
		hist = newHistogram()
		c.submitLatency[outcome] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeBatch(size, successful int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches++
	c.batchProofs += uint64(size)
	c.batchSuccess += uint64(successful)
}

func newHistogram() *histogram {
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
	// Values greater than the last bucket are accounted for in the +Inf bucket via h.count.
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, registryCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type requestMetric struct {
		requestKey
		value uint64
	}
	type errorMetric struct {
		errorKey
		value uint64
	}
	type submissionMetric struct {
		submissionKey
		value uint64
	}
	type latencyMetric struct {
		name    string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	reqs := make([]requestMetric, 0, len(c.requests))
	for key, value := range c.requests {
		reqs = append(reqs, requestMetric{requestKey: key, value: value})
	}
	errs := make([]errorMetric, 0, len(c.errors))
	for key, value := range c.errors {
		errs = append(errs, errorMetric{errorKey: key, value: value})
	}
	subs := make([]submissionMetric, 0, len(c.submissions))
	for key, value := range c.submissions {
		subs = append(subs, submissionMetric{submissionKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.submitLatency))
	for outcome, hist := range c.submitLatency {
		lats = append(lats, latencyMetric{
			name:    outcome,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].handler == reqs[j].handler {
			if reqs[i].method == reqs[j].method {
				return reqs[i].code < reqs[j].code
			}
			return reqs[i].method < reqs[j].method
		}
		return reqs[i].handler < reqs[j].handler
	})
	sort.Slice(errs, func(i, j int) bool {
		if errs[i].handler == errs[j].handler {
			return errs[i].method < errs[j].method
		}
		return errs[i].handler < errs[j].handler
	})
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].outcome == subs[j].outcome {
			return subs[i].valid < subs[j].valid
		}
		return subs[i].outcome < subs[j].outcome
	})
	sort.Slice(lats, func(i, j int) bool {
		return lats[i].name < lats[j].name
	})

	var builder strings.Builder
	builder.Grow(2048)

	builder.WriteString("# HELP zkreg_http_requests_total Total number of HTTP requests processed.\n")
	builder.WriteString("# TYPE zkreg_http_requests_total counter\n")
	for _, metric := range reqs {
		builder.WriteString(fmt.Sprintf("zkreg_http_requests_total{handler=\"%s\",method=\"%s\",code=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), escape(metric.code), metric.value))
	}

	builder.WriteString("# HELP zkreg_http_request_errors_total Total number of HTTP requests that resulted in a server error.\n")
	builder.WriteString("# TYPE zkreg_http_request_errors_total counter\n")
	for _, metric := range errs {
		builder.WriteString(fmt.Sprintf("zkreg_http_request_errors_total{handler=\"%s\",method=\"%s\"} %d\n",
			escape(metric.handler), escape(metric.method), metric.value))
	}

	builder.WriteString("# HELP zkreg_submissions_total Total number of proof submissions by outcome.\n")
	builder.WriteString("# TYPE zkreg_submissions_total counter\n")
	for _, metric := range subs {
		builder.WriteString(fmt.Sprintf("zkreg_submissions_total{outcome=\"%s\",valid=\"%s\"} %d\n",
			escape(metric.outcome), escape(metric.valid), metric.value))
	}

	builder.WriteString("# HELP zkreg_batches_total Total number of accepted batch submissions.\n")
	builder.WriteString("# TYPE zkreg_batches_total counter\n")
	builder.WriteString(fmt.Sprintf("zkreg_batches_total %d\n", c.batches))

	builder.WriteString("# HELP zkreg_batch_proofs_total Total number of proofs carried by accepted batches.\n")
	builder.WriteString("# TYPE zkreg_batch_proofs_total counter\n")
	builder.WriteString(fmt.Sprintf("zkreg_batch_proofs_total %d\n", c.batchProofs))

	builder.WriteString("# HELP zkreg_batch_successful_proofs_total Total number of valid proofs carried by accepted batches.\n")
	builder.WriteString("# TYPE zkreg_batch_successful_proofs_total counter\n")
	builder.WriteString(fmt.Sprintf("zkreg_batch_successful_proofs_total %d\n", c.batchSuccess))

	builder.WriteString("# HELP zkreg_submission_duration_seconds Proof submission duration in seconds.\n")
	builder.WriteString("# TYPE zkreg_submission_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("zkreg_submission_duration_seconds_bucket{outcome=\"%s\",le=\"%s\"} %d\n",
				escape(metric.name), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("zkreg_submission_duration_seconds_bucket{outcome=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.name), metric.count))
		builder.WriteString(fmt.Sprintf("zkreg_submission_duration_seconds_sum{outcome=\"%s\"} %s\n",
			escape(metric.name), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("zkreg_submission_duration_seconds_count{outcome=\"%s\"} %d\n",
			escape(metric.name), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
