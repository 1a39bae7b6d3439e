package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/tweetfeed/internal/store"
	"github.com/segmentio/kafka-go"
)

// TestWorker_GracefulShutdown ensures that the worker:
// 1. Processes messages from Kafka.
// 2. Writes follower notifications.
// 3. Shuts down gracefully when the context is canceled.
func TestWorker_GracefulShutdown(t *testing.T) {
	mockStore := store.NewMock()
	seedGraph(t, mockStore)

	// Mock Kafka reader with a single message
	mockKafka := &MockKafkaReader{
		Messages: []kafka.Message{eventMessage(t, createdEvent())},
	}

	// Context with timeout to simulate graceful shutdown signal
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})

	worker := New(mockStore, mockKafka, 2, 4)

	// Run the worker in a separate goroutine
	go func() {
		worker.Run(ctx) // Worker processes messages until ctx.Done()
		close(done)
	}()

	// Wait for worker to finish or timeout
	select {
	case <-done:
		list, _ := mockStore.GetNotifications(context.Background(), "f1", 10)
		if len(list) != 1 || list[0].TweetID != "100" {
			t.Fatalf("notifications not updated correctly: %+v", list)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("worker did not shutdown gracefully in time")
	}

	if err := worker.Close(); err != nil {
		t.Fatalf("worker Close() error: %v", err)
	}

	if !mockKafka.isClosed() {
		t.Fatal("expected Kafka reader to be closed")
	}
}

// MockKafkaReader simulates an idle-waiting Kafka reader for testing purposes
type MockKafkaReader struct {
	mu       sync.Mutex
	Messages []kafka.Message // Queue of messages to return
	Closed   bool            // Tracks whether Close() has been called
}

// ReadMessage returns the next message in the queue or an empty one after a short wait
func (m *MockKafkaReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	if len(m.Messages) == 0 {
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond) // simulate idle wait
		return kafka.Message{}, nil
	}
	msg := m.Messages[0]
	m.Messages = m.Messages[1:]
	m.mu.Unlock()
	return msg, nil
}

// Close marks the mock Kafka reader as closed
func (m *MockKafkaReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

func (m *MockKafkaReader) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closed
}
