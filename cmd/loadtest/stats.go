package main

import (
	"fmt"
	"io"
	"math"
	"sort"
	"sync"
	"time"
)

type endpoint string

const (
	endpointAutosearch endpoint = "autosearch"
	endpointMatch      endpoint = "match"
)

type stats struct {
	mu          sync.Mutex
	total       int64
	success     int64
	errors      int64
	cacheHits   int64
	autosearch  int64
	latencies   map[endpoint][]time.Duration
	statusCodes map[int]int64
}

func newStats() *stats {
	return &stats{
		latencies:   make(map[endpoint][]time.Duration),
		statusCodes: make(map[int]int64),
	}
}

func (s *stats) record(ep endpoint, d time.Duration, status int, cached bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.errors++
		return
	}
	if status >= 200 && status < 300 {
		s.success++
	} else {
		s.errors++
	}
	if ep == endpointAutosearch && status == 200 {
		s.autosearch++
		if cached {
			s.cacheHits++
		}
	}
	s.latencies[ep] = append(s.latencies[ep], d)
	s.statusCodes[status]++
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, s *stats, duration time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Successful:      %d\n", s.success)
	fmt.Fprintf(w, "Errors:          %d\n", s.errors)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.errors)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	}
	if s.autosearch > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits)/float64(s.autosearch)*100)
	}

	for _, ep := range []endpoint{endpointAutosearch, endpointMatch} {
		lat := append([]time.Duration(nil), s.latencies[ep]...)
		if len(lat) == 0 {
			continue
		}
		sort.Slice(lat, func(i, j int) bool { return lat[i] < lat[j] })
		avg, stddev := meanStddev(lat)
		fmt.Fprintln(w)
		fmt.Fprintf(w, "=== Latency: %s (%d) ===\n", ep, len(lat))
		fmt.Fprintf(w, "Min:    %s\n", lat[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(lat, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(lat, 90))
		fmt.Fprintf(w, "P99:    %s\n", percentile(lat, 99))
		fmt.Fprintf(w, "Max:    %s\n", lat[len(lat)-1])
		fmt.Fprintf(w, "StdDev: %s\n", stddev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}

	if s.total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the resolver running?")
		return false
	}
	return true
}

func meanStddev(lat []time.Duration) (time.Duration, time.Duration) {
	var sum time.Duration
	for _, l := range lat {
		sum += l
	}
	avg := sum / time.Duration(len(lat))
	var sq float64
	for _, l := range lat {
		d := float64(l - avg)
		sq += d * d
	}
	return avg, time.Duration(math.Sqrt(sq / float64(len(lat))))
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
