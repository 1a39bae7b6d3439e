// Command http_load drives a mixed tweet/feed workload against a running server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"example.com/tweetfeed/bench/benchutil"
)

func main() {
	// --- Command-line flags ---
	var server, csvFile string
	var duration, concurrency, readRatio int
	var trimPercent float64
	var insecure bool

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent goroutines / users")
	flag.IntVar(&readRatio, "reads", 4, "feed reads per tweet written")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	ctx := context.Background()
	client := benchutil.NewClient(server, insecure)

	// --- Create users; each follows the previous one so feeds are not empty ---
	fmt.Printf("Creating %d users...\n", concurrency)
	names := make([]string, concurrency)
	tokens := make([]string, concurrency)
	run := time.Now().UnixNano()
	for i := range names {
		names[i] = fmt.Sprintf("load-user-%d-%d", i, run)
		token, err := client.Signup(ctx, names[i])
		if err != nil {
			panic(fmt.Sprintf("failed to create user: %v", err))
		}
		tokens[i] = token
		if i > 0 {
			if err := client.Follow(ctx, token, names[i-1]); err != nil {
				panic(fmt.Sprintf("failed to follow: %v", err))
			}
		}
	}

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	var requests, successes, errors4xx, errors5xx, transport atomic.Int64
	latencySlices := make([][]float64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var local []float64

			for n := 0; time.Now().Before(stopTime); n++ {
				start := time.Now()
				var status int
				var err error
				if n%(readRatio+1) == 0 {
					status, err = client.Do(ctx, http.MethodPost, "/user/tweets", tokens[idx],
						map[string]string{"tweet": fmt.Sprintf("load test tweet %d", start.UnixNano())}, nil)
				} else {
					status, err = client.Do(ctx, http.MethodGet, "/user/tweets/feed", tokens[idx], nil, nil)
				}
				local = append(local, time.Since(start).Seconds()*1000)
				requests.Add(1)

				switch {
				case status == 0:
					transport.Add(1)
					fmt.Printf("Request error: %v\n", err)
				case status >= 500:
					errors5xx.Add(1)
				case status >= 400:
					errors4xx.Add(1)
				default:
					successes.Add(1)
				}
			}
			latencySlices[idx] = local
		}(i)
	}
	wg.Wait()

	var all []float64
	for _, s := range latencySlices {
		all = append(all, s...)
	}

	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d  transport: %d\n",
		requests.Load(), successes.Load(), errors4xx.Load(), errors5xx.Load(), transport.Load())
	fmt.Printf("Latency (ms): %s\n", benchutil.Summarize(all, trimPercent))

	if err := benchutil.WriteCSV(csvFile, all); err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}
