// Command kafka_producer floods the tweet event topic to measure worker throughput.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/models"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

func main() {
	var broker, topic, authorID string
	var total, batchSize, numWorkers int

	flag.StringVar(&broker, "broker", "localhost:9092", "Kafka broker address")
	flag.StringVar(&topic, "topic", "tweet-events", "tweet event topic")
	flag.StringVar(&authorID, "author", "", "author id to attribute events to (random when empty)")
	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "events per write")
	flag.IntVar(&numWorkers, "workers", 4, "parallel producers")
	flag.Parse()

	w, err := appkafka.NewKafkaWriter(appkafka.KafkaConfig{
		Brokers: []string{broker},
		Topic:   topic,
	})
	if err != nil {
		panic(err)
	}
	defer w.Close()

	if authorID == "" {
		authorID = uuid.NewString()
	}
	start := time.Now()

	var successCount, failCount atomic.Uint64
	jobs := make(chan int, batchSize*numWorkers)
	var wg sync.WaitGroup

	flush := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			failCount.Add(uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		successCount.Add(uint64(len(batch)))
	}

	// --- Start producer goroutines ---
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			for n := range jobs {
				id, err := uuid.NewV7()
				if err != nil {
					failCount.Add(1)
					continue
				}
				ev := models.TweetEvent{
					Type:           models.TweetCreated,
					TweetID:        id.String(),
					AuthorID:       authorID,
					AuthorUsername: "bench",
					Text:           fmt.Sprintf("kafka bench %d", n),
					Created:        time.Now().UTC(),
				}
				v, err := json.Marshal(ev)
				if err != nil {
					failCount.Add(1)
					continue
				}
				batch = append(batch, kafka.Message{Key: []byte(authorID), Value: v})

				if len(batch) >= batchSize {
					flush(batch)
					batch = batch[:0]
				}
			}
			if len(batch) > 0 {
				flush(batch)
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// --- Benchmark results ---
	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount.Load(), failCount.Load())
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount.Load())/elapsed.Seconds())
}
