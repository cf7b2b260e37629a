// Command loadtest drives the resolver API with a mix of autosearch lookups
// and match requests and prints throughput, latency percentiles and the
// autosearch cache hit rate.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var defaultQueries = []string{
	"cystic fibrosis",
	"GARD:0006233",
	"6233",
	"amyotrophic lateral sclerosis",
	"Lou Gehrig's disease",
	"ehlers-danlos syndrome",
	"huntington disease",
	"progeria",
	"fibrodysplasia ossificans progressiva",
	"mackay shek carr syndrome",
	"marfan syndrome",
	"not a disease at all",
}

var defaultTexts = []string{
	"My sister was diagnosed with cystic fibrosis last spring.",
	"Looking for others living with Ehlers-Danlos syndrome and POTS.",
	"Huntington disease runs in my family and I am thinking about testing.",
	"Nothing medical here, just a question about the weekend.",
	"Our son has progeria; the clinic in Boston has been wonderful.",
}

type config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	MatchRatio  float64
	Queries     []string
	Texts       []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the resolver service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	matchRatio := flag.Float64("match-ratio", 0.2, "share of requests sent to /api/v1/match")
	queryFile := flag.String("queries", "", "file with one autosearch query per line")
	flag.Parse()

	cfg := config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: *concurrency,
		Duration:    *duration,
		MatchRatio:  *matchRatio,
		Queries:     defaultQueries,
		Texts:       defaultTexts,
	}
	if *queryFile != "" {
		qs, err := readLines(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		cfg.Queries = qs
	}
	if len(cfg.Queries) == 0 {
		fmt.Fprintln(os.Stderr, "no queries to send")
		os.Exit(1)
	}

	fmt.Println("=== Resolver Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Printf("Match ratio: %.0f%%\n", cfg.MatchRatio*100)
	fmt.Println()

	stats := run(cfg)
	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func run(cfg config) *stats {
	st := newStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rnd := rand.New(rand.NewPCG(uint64(worker), uint64(time.Now().UnixNano())))
			for i := worker; ctx.Err() == nil; i++ {
				var req *http.Request
				endpoint := endpointAutosearch
				if rnd.Float64() < cfg.MatchRatio {
					endpoint = endpointMatch
					req = matchRequest(ctx, cfg.BaseURL, fmt.Sprintf("w%d-%d", worker, i), cfg.Texts[rnd.IntN(len(cfg.Texts))])
				} else {
					req = autosearchRequest(ctx, cfg.BaseURL, cfg.Queries[i%len(cfg.Queries)])
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() == nil {
						st.record(endpoint, elapsed, 0, false, err)
					}
					continue
				}
				cached := false
				if endpoint == endpointAutosearch && resp.StatusCode == http.StatusOK {
					var body struct {
						Cached bool `json:"cached"`
					}
					_ = json.NewDecoder(resp.Body).Decode(&body)
					cached = body.Cached
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				st.record(endpoint, elapsed, resp.StatusCode, cached, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return st
}

func autosearchRequest(ctx context.Context, base, query string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/v1/autosearch?q="+url.QueryEscape(query), nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func matchRequest(ctx context.Context, base, id, text string) *http.Request {
	body, _ := json.Marshal(map[string]string{"id": id, "text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/v1/match", bytes.NewReader(body))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
