package extraction

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"hsmt-backend/internal/shared/telemetry"
)

type mergeData struct {
	A string
	B string
}

// mergeHR reconciles the HR lists of the HR and technology branches. The LLM
// merge is tried first; on any failure the deterministic merge is used.
func (e *Extractor) mergeHR(ctx context.Context, hsID string, a, b []Position) []Position {
	switch {
	case len(a) == 0:
		return MergePositions(nil, b)
	case len(b) == 0:
		return MergePositions(a, nil)
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA == nil && errB == nil && e.LLM != nil {
		var out hrOutput
		err := e.LLM.CompleteJSON(ctx, "merge_hr", mergeData{A: string(ja), B: string(jb)}, &out)
		if err == nil && len(out.Positions) > 0 {
			return out.Positions
		}
		telemetry.Warn("extraction.hr_merge.fallback", map[string]any{
			"hs_id": hsID,
			"error": err,
		})
	}
	return MergePositions(a, b)
}

// MergePositions merges positions by normalized name. The larger quantity
// wins and criteria are unioned in first-seen order.
func MergePositions(a, b []Position) []Position {
	var out []Position
	index := map[string]int{}
	for _, list := range [][]Position{a, b} {
		for _, p := range list {
			key := normKey(p.Position)
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				p.Requirements = dedupItems(nil, p.Requirements)
				index[key] = len(out)
				out = append(out, p)
				continue
			}
			cur := &out[i]
			if p.Quantity.Int() > cur.Quantity.Int() {
				cur.Quantity = p.Quantity
			}
			if cur.DocumentName == "" {
				cur.DocumentName = p.DocumentName
			}
			cur.Requirements = dedupItems(cur.Requirements, p.Requirements)
		}
	}
	return out
}

func dedupItems(base, extra []HRItem) []HRItem {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]HRItem, 0, len(base)+len(extra))
	for _, list := range [][]HRItem{base, extra} {
		for _, it := range list {
			key := normKey(it.Name) + "\x00" + normKey(it.Description)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, it)
		}
	}
	return out
}

func normKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), " ")
}
