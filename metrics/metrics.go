// Package metrics provides statistics commonly returned by benchmark
// functions: percentiles, means, classification scores and summaries of
// inference load tests.
package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Summary describes a sample of measurements.
type Summary struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Summarize computes the summary of vals. The input is not modified.
func Summarize(vals []float64) Summary {
	if len(vals) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	return Summary{
		Count: len(sorted),
		Mean:  Mean(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 50),
		P90:   percentile(sorted, 90),
		P95:   percentile(sorted, 95),
		P99:   percentile(sorted, 99),
	}
}

// Percentile returns the p-th percentile of vals using the nearest-rank
// method.
func Percentile(vals []float64, p float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	return percentile(sorted, p)
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100.0) * float64(len(sorted))
	idx := int(math.Ceil(rank)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Mean returns the arithmetic mean, or 0 for no values.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Accuracy returns the fraction of predictions equal to their label.
func Accuracy[T comparable](predictions, labels []T) (float64, error) {
	if len(predictions) != len(labels) {
		return 0, fmt.Errorf("accuracy: %d predictions for %d labels", len(predictions), len(labels))
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("accuracy: no samples")
	}
	var correct int
	for i := range labels {
		if predictions[i] == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(labels)), nil
}

// Scores are binary classification scores for one positive class.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// Classification computes precision, recall and F1 treating positive as the
// positive class. Undefined ratios are reported as 0.
func Classification[T comparable](predictions, labels []T, positive T) (Scores, error) {
	if len(predictions) != len(labels) {
		return Scores{}, fmt.Errorf("classification: %d predictions for %d labels", len(predictions), len(labels))
	}
	var tp, fp, fn float64
	for i := range labels {
		switch {
		case predictions[i] == positive && labels[i] == positive:
			tp++
		case predictions[i] == positive:
			fp++
		case labels[i] == positive:
			fn++
		}
	}
	var s Scores
	if tp+fp > 0 {
		s.Precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		s.Recall = tp / (tp + fn)
	}
	if s.Precision+s.Recall > 0 {
		s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}
	return s, nil
}

// LoadTest is the JSON report of an inference load generator.
type LoadTest struct {
	Requests []Request `json:"requests"`
}

// Request holds per-request measurements from a load generator.
type Request struct {
	TTFTMs          float64 `json:"ttft_ms"`
	E2ELatencyMs    float64 `json:"e2e_latency_ms"`
	ITLMs           float64 `json:"itl_ms"`
	OutputTokens    int     `json:"output_tokens"`
	InputTokens     int     `json:"input_tokens"`
	DurationSeconds float64 `json:"duration_seconds"`
	Success         bool    `json:"success"`
}

// Latency summarizes the successful requests of a load test.
type Latency struct {
	TTFTMs                  Summary `json:"ttft_ms"`
	E2ELatencyMs            Summary `json:"e2e_latency_ms"`
	ITLMs                   Summary `json:"itl_ms"`
	ThroughputPerRequestTPS float64 `json:"throughput_per_request_tps"`
	SuccessfulRequests      int     `json:"successful_requests"`
	FailedRequests          int     `json:"failed_requests"`
}

// ParseLoadTest extracts a load test report from log output. It first looks
// for content between MLBENCH_JSON_BEGIN/END markers, then tries the whole
// input, then scans for a JSON line.
func ParseLoadTest(data []byte) (*LoadTest, error) {
	var out LoadTest

	beginMarker := []byte("MLBENCH_JSON_BEGIN")
	endMarker := []byte("MLBENCH_JSON_END")
	if beginIdx := bytes.Index(data, beginMarker); beginIdx >= 0 {
		rest := data[beginIdx+len(beginMarker):]
		if endIdx := bytes.Index(rest, endMarker); endIdx >= 0 {
			jsonData := bytes.TrimSpace(rest[:endIdx])
			if err := json.Unmarshal(jsonData, &out); err == nil && len(out.Requests) > 0 {
				return &out, nil
			}
		}
	}

	if err := json.Unmarshal(data, &out); err == nil {
		return &out, nil
	}

	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		if err := json.Unmarshal(line, &out); err == nil && len(out.Requests) > 0 {
			return &out, nil
		}
	}
	return nil, fmt.Errorf("parse load test: no valid JSON payload found in %d bytes of output", len(data))
}

// Latency computes latency percentiles over the successful requests.
func (lt *LoadTest) Latency() Latency {
	var ttfts, e2es, itls, durs []float64
	var tokens int
	var l Latency
	for _, r := range lt.Requests {
		if !r.Success {
			l.FailedRequests++
			continue
		}
		l.SuccessfulRequests++
		ttfts = append(ttfts, r.TTFTMs)
		e2es = append(e2es, r.E2ELatencyMs)
		itls = append(itls, r.ITLMs)
		durs = append(durs, r.DurationSeconds)
		tokens += r.OutputTokens
	}
	l.TTFTMs = Summarize(ttfts)
	l.E2ELatencyMs = Summarize(e2es)
	l.ITLMs = Summarize(itls)

	// Per-request throughput: average output tokens / average duration.
	if l.SuccessfulRequests > 0 {
		avgTokens := float64(tokens) / float64(l.SuccessfulRequests)
		if avgDur := Mean(durs); avgDur > 0 {
			l.ThroughputPerRequestTPS = avgTokens / avgDur
		}
	}
	return l
}
