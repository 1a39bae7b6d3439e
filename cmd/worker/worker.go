package worker

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/logger"
	"example.com/tweetfeed/internal/models"
	"example.com/tweetfeed/internal/store"
	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
)

var logg = logger.New()

// fanoutLimit bounds concurrent notification inserts per tweet.
const fanoutLimit = 20

// Worker consumes tweet events and maintains follower notifications concurrently.
type Worker struct {
	store        store.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store store.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run reads events until ctx is cancelled, then drains the queue and returns.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan kafka.Message, w.jobQueueSize)
	var wg sync.WaitGroup

	// Queued events are still applied after shutdown starts.
	processCtx := context.WithoutCancel(ctx)
	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(processCtx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into a job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- kafka.Message) {
	var retry int
	for {
		if ctx.Err() != nil {
			return
		}

		msg, err := w.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
			logg.Error("worker", "Kafka read error, backing off", err)
			if !waitWithContext(ctx, backoff) {
				return
			}
			retry++
			continue
		}
		retry = 0

		if len(msg.Value) == 0 {
			if !waitWithContext(ctx, 50*time.Millisecond) {
				return
			}
			continue
		}

		if !enqueue(ctx, jobs, msg) {
			return
		}
	}
}

// enqueue blocks until msg is queued or ctx is done.
func enqueue(ctx context.Context, jobs chan<- kafka.Message, msg kafka.Message) bool {
	for {
		select {
		case jobs <- msg:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(100 * time.Millisecond):
			logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
		}
	}
}

// processLoop handles queued events until the queue is closed.
func (w *Worker) processLoop(ctx context.Context, jobs <-chan kafka.Message) {
	for msg := range jobs {
		if err := w.handle(ctx, msg); err != nil {
			logg.Error("worker", "Failed to handle tweet event", err)
		}
	}
}

// handle applies one tweet event. Malformed events are reported and dropped.
func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := appkafka.DecodeTweetEvent(msg)
	if err != nil {
		return err
	}

	switch ev.Type {
	case models.TweetCreated:
		return w.notifyFollowers(ctx, ev)
	case models.TweetDeleted:
		if err := w.store.DeleteNotificationsForTweet(ctx, ev.TweetID); err != nil {
			return err
		}
		logg.Info("worker", "Notifications removed for deleted tweet")
	}
	return nil
}

// notifyFollowers writes one notification per follower of the author.
func (w *Worker) notifyFollowers(ctx context.Context, ev models.TweetEvent) error {
	followers, err := w.store.GetFollowerIDs(ctx, ev.AuthorID)
	if err != nil {
		return fmt.Errorf("fetch followers: %w", err)
	}

	var (
		mu        sync.Mutex
		result    *multierror.Error
		fanoutWG  sync.WaitGroup
		semaphore = make(chan struct{}, fanoutLimit)
	)

	for _, uid := range followers {
		select {
		case <-ctx.Done():
			fanoutWG.Wait()
			return ctx.Err()
		case semaphore <- struct{}{}:
		}

		fanoutWG.Add(1)
		go func(u string) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			err := w.store.AddNotification(ctx, models.Notification{
				UserID:         u,
				TweetID:        ev.TweetID,
				AuthorUsername: ev.AuthorUsername,
				Text:           ev.Text,
				Created:        ev.Created,
			})
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}(uid)
	}

	fanoutWG.Wait()
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	logg.Info("worker", "Tweet delivered to "+fmt.Sprint(len(followers))+" followers (tweet ID anonymized)")
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the store, reporting every failure.
func (w *Worker) Close() error {
	var result *multierror.Error

	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		result = multierror.Append(result, err)
	}

	logg.Info("worker", "Closing store")
	if err := w.store.Close(); err != nil {
		logg.Error("worker", "Error closing store", err)
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
