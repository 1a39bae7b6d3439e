// Command e2e_bench measures how long a tweet takes to reach its followers'
// notification inboxes through the Kafka worker.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"example.com/tweetfeed/bench/benchutil"
	"example.com/tweetfeed/internal/models"
)

type tweetRecord struct {
	ID     string
	Author string
	Sent   time.Time
}

func main() {
	// CLI flags
	var serverAddr, csvFile string
	var users, follows, tweets, concurrency, pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&users, "users", 50, "number of users to create")
	flag.IntVar(&follows, "follows", 10, "average follows per user")
	flag.IntVar(&tweets, "tweets", 100, "number of tweets to publish")
	flag.IntVar(&concurrency, "c", 20, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 10, "seconds to wait for delivery")
	flag.StringVar(&csvFile, "csv", "e2e_latencies.csv", "CSV file to save latencies")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification")
	flag.Parse()

	ctx := context.Background()
	client := benchutil.NewClient(serverAddr, insecure)

	// --- 1) Create users ---
	fmt.Printf("Creating %d users...\n", users)
	names := make([]string, users)
	tokens := make(map[string]string, users)
	run := time.Now().UnixNano()
	for i := range names {
		names[i] = fmt.Sprintf("user-%d-%d", i, run)
		token, err := client.Signup(ctx, names[i])
		if err != nil {
			fmt.Printf("create user error: %v\n", err)
			os.Exit(1)
		}
		tokens[names[i]] = token
	}

	// --- 2) Create follow relationships ---
	fmt.Printf("Creating follows (~%d per user)...\n", follows)
	followers := make(map[string]map[string]bool) // author -> follower set
	for _, u := range names {
		for j := 0; j < follows; j++ {
			followee := names[rand.Intn(len(names))]
			if followee == u {
				continue
			}
			if err := client.Follow(ctx, tokens[u], followee); err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			if followers[followee] == nil {
				followers[followee] = make(map[string]bool)
			}
			followers[followee][u] = true
		}
	}

	// --- 3) Publish tweets concurrently ---
	fmt.Printf("Publishing %d tweets with concurrency %d...\n", tweets, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	records := make(chan tweetRecord, tweets)

	for i := 0; i < tweets; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			author := names[rand.Intn(len(names))]
			start := time.Now()
			id, err := client.Tweet(ctx, tokens[author], fmt.Sprintf("bench tweet %d", i))
			if err != nil {
				fmt.Printf("tweet error: %v\n", err)
				return
			}
			records <- tweetRecord{ID: id, Author: author, Sent: start}
		}(i)
	}
	wg.Wait()
	close(records)

	// --- 4) Poll follower inboxes ---
	fmt.Println("Checking notification delivery...")
	var (
		mu        sync.Mutex
		latencies []float64
		failCount int
		checks    sync.WaitGroup
	)
	for rec := range records {
		for follower := range followers[rec.Author] {
			checks.Add(1)
			go func(rec tweetRecord, token string) {
				defer checks.Done()
				lat, ok := waitForNotification(ctx, client, token, rec, time.Duration(pollTimeout)*time.Second)
				mu.Lock()
				defer mu.Unlock()
				if ok {
					latencies = append(latencies, lat)
				} else {
					failCount++
				}
			}(rec, tokens[follower])
		}
	}
	checks.Wait()

	// --- 5) Report ---
	if len(latencies) == 0 {
		fmt.Println("No successful deliveries recorded.")
		return
	}
	fmt.Printf("Delivery stats (ms): %s fails=%d\n", benchutil.Summarize(latencies, 1.0), failCount)
	if err := benchutil.WriteCSV(csvFile, latencies); err != nil {
		fmt.Printf("Failed to write CSV: %v\n", err)
		return
	}
	fmt.Printf("Saved %s\n", csvFile)
}

// waitForNotification polls the inbox until rec shows up and returns the latency in ms.
func waitForNotification(ctx context.Context, client *benchutil.Client, token string, rec tweetRecord, timeout time.Duration) (float64, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var inbox []models.Notification
		if _, err := client.Do(ctx, http.MethodGet, "/user/notifications", token, nil, &inbox); err == nil {
			for _, n := range inbox {
				if n.TweetID == rec.ID {
					return time.Since(rec.Sent).Seconds() * 1000, true
				}
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return 0, false
}
