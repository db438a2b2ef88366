package metrics

import (
	"strings"
	"testing"
)

func TestRenderIncludesStageLabels(t *testing.T) {
	IncStageReceived("classify")
	IncStageReceived("classify")
	IncStageFailed("sql_answer")
	ObserveStageDurationMs(250)

	out := Render()
	for _, want := range []string{
		`hsmt_stage_received_total{stage="classify"} 2`,
		`hsmt_stage_failed_total{stage="sql_answer"} 1`,
		`hsmt_stage_duration_ms_bucket{le="500"} 1`,
		`hsmt_stage_duration_ms_bucket{le="+Inf"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestHistogramCumulativeBuckets(t *testing.T) {
	h := newHistogram([]float64{10, 20})
	h.Observe(5)
	h.Observe(15)
	h.Observe(25)
	snap := h.Snapshot()
	if snap.count != 3 || snap.counts[0] != 1 || snap.counts[1] != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
