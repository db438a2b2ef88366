package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	stageReceived  = newLabeledCounter()
	stageCompleted = newLabeledCounter()
	stageFailed    = newLabeledCounter()
	stageDropped   = newLabeledCounter()
	llmCalls       = newLabeledCounter()
	mailsSent      atomic.Uint64
	mailsIngested  atomic.Uint64

	stageDuration = newHistogram([]float64{100, 500, 1000, 5000, 15000, 60000, 180000, 600000})
)

// IncStageReceived counts a message taken off a stage queue.
func IncStageReceived(stage string) { stageReceived.Inc(stage) }

// IncStageCompleted counts a message whose stage finished and was acked.
func IncStageCompleted(stage string) { stageCompleted.Inc(stage) }

// IncStageFailed counts a message whose stage failed.
func IncStageFailed(stage string) { stageFailed.Inc(stage) }

// IncStageDropped counts an unparseable message that was acked and dropped.
func IncStageDropped(stage string) { stageDropped.Inc(stage) }

// IncLLMCall counts one LLM request by prompt name.
func IncLLMCall(prompt string) { llmCalls.Inc(prompt) }

// IncMailSent counts an outbound email.
func IncMailSent() { mailsSent.Add(1) }

// IncMailIngested counts an inbound email accepted by the poller.
func IncMailIngested() { mailsIngested.Add(1) }

// ObserveStageDurationMs records a stage duration in milliseconds.
func ObserveStageDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	stageDuration.Observe(value)
}

// Since returns the elapsed milliseconds from start.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeLabeled(&buf, "hsmt_stage_received_total", "Messages received per stage", "stage", stageReceived.Snapshot())
	writeLabeled(&buf, "hsmt_stage_completed_total", "Messages completed per stage", "stage", stageCompleted.Snapshot())
	writeLabeled(&buf, "hsmt_stage_failed_total", "Messages failed per stage", "stage", stageFailed.Snapshot())
	writeLabeled(&buf, "hsmt_stage_dropped_total", "Unparseable messages dropped per stage", "stage", stageDropped.Snapshot())
	writeLabeled(&buf, "hsmt_llm_calls_total", "LLM calls per prompt", "prompt", llmCalls.Snapshot())
	writeCounter(&buf, "hsmt_mail_sent_total", "Outbound emails sent", mailsSent.Load())
	writeCounter(&buf, "hsmt_mail_ingested_total", "Inbound emails ingested", mailsIngested.Load())
	writeHistogram(&buf, "hsmt_stage_duration_ms", "Stage duration in milliseconds", stageDuration.Snapshot())
	return buf.String()
}

type labeledCounter struct {
	mu     sync.Mutex
	values map[string]uint64
}

func newLabeledCounter() *labeledCounter {
	return &labeledCounter{values: map[string]uint64{}}
}

func (c *labeledCounter) Inc(label string) {
	c.mu.Lock()
	c.values[label]++
	c.mu.Unlock()
}

func (c *labeledCounter) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]uint64, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
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
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

// Observe records value into the first bucket whose bound is >= value.
func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			return
		}
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
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeLabeled(buf *bytes.Buffer, name, help, label string, values map[string]uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, "%s{%s=%q} %d\n", name, label, k, values[k])
	}
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
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
