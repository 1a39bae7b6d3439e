package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/models"
	"example.com/tweetfeed/internal/store"
	"github.com/hashicorp/go-multierror"
	"github.com/segmentio/kafka-go"
)

// seedGraph creates an author with two followers, one unrelated user and the tweet
// described by createdEvent.
func seedGraph(t *testing.T, st *store.MockStore) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"author", "f1", "f2", "other"} {
		if err := st.CreateUser(ctx, models.User{ID: id, Username: id}); err != nil {
			t.Fatalf("CreateUser(%s) failed: %v", id, err)
		}
	}
	for _, f := range []string{"f1", "f2"} {
		if err := st.CreateFollow(ctx, f, "author"); err != nil {
			t.Fatalf("CreateFollow failed: %v", err)
		}
	}
	ev := createdEvent()
	if err := st.AddTweet(ctx, models.Tweet{ID: ev.TweetID, AuthorID: ev.AuthorID, Text: ev.Text, Created: ev.Created}); err != nil {
		t.Fatalf("AddTweet failed: %v", err)
	}
}

func eventMessage(t *testing.T, ev models.TweetEvent) kafka.Message {
	t.Helper()
	w := &appkafka.MockKafka{}
	if err := appkafka.PublishTweetEvent(context.Background(), w, ev); err != nil {
		t.Fatalf("PublishTweetEvent failed: %v", err)
	}
	return w.Written()[0]
}

func createdEvent() models.TweetEvent {
	return models.TweetEvent{
		Type:           models.TweetCreated,
		TweetID:        "100",
		AuthorID:       "author",
		AuthorUsername: "author",
		Text:           "Hello followers!",
		Created:        time.Now().UTC(),
	}
}

// ---------- Positive tests ----------

func TestWorker_NotifyFollowers(t *testing.T) {
	mockStore := store.NewMock()
	seedGraph(t, mockStore)
	w := New(mockStore, &appkafka.MockKafka{}, 1, 1)
	ctx := context.Background()

	if err := w.handle(ctx, eventMessage(t, createdEvent())); err != nil {
		t.Fatalf("worker failed: %v", err)
	}

	for _, uid := range []string{"f1", "f2"} {
		list, _ := mockStore.GetNotifications(ctx, uid, 10)
		if len(list) != 1 || list[0].Text != "Hello followers!" || list[0].AuthorUsername != "author" {
			t.Fatalf("notifications for %s not updated correctly, got: %+v", uid, list)
		}
	}
	if list, _ := mockStore.GetNotifications(ctx, "other", 10); len(list) != 0 {
		t.Fatalf("non-follower got notifications: %+v", list)
	}

	// Redelivery does not duplicate.
	if err := w.handle(ctx, eventMessage(t, createdEvent())); err != nil {
		t.Fatalf("worker failed on redelivery: %v", err)
	}
	if list, _ := mockStore.GetNotifications(ctx, "f1", 10); len(list) != 1 {
		t.Fatalf("expected 1 notification after redelivery, got %d", len(list))
	}
}

func TestWorker_TweetDeletedRemovesNotifications(t *testing.T) {
	mockStore := store.NewMock()
	seedGraph(t, mockStore)
	w := New(mockStore, &appkafka.MockKafka{}, 1, 1)
	ctx := context.Background()

	if err := w.handle(ctx, eventMessage(t, createdEvent())); err != nil {
		t.Fatalf("worker failed: %v", err)
	}
	deleted := models.TweetEvent{Type: models.TweetDeleted, TweetID: "100", AuthorID: "author"}
	if err := w.handle(ctx, eventMessage(t, deleted)); err != nil {
		t.Fatalf("worker failed on delete: %v", err)
	}

	for _, uid := range []string{"f1", "f2"} {
		if list, _ := mockStore.GetNotifications(ctx, uid, 10); len(list) != 0 {
			t.Fatalf("expected notifications for %s to be removed, got %+v", uid, list)
		}
	}
}

// A delete handled before its create must not leave the tweet in any inbox.
func TestWorker_DeleteBeforeCreate(t *testing.T) {
	mockStore := store.NewMock()
	seedGraph(t, mockStore)
	w := New(mockStore, &appkafka.MockKafka{}, 1, 1)
	ctx := context.Background()

	if err := mockStore.DeleteTweet(ctx, "author", "100"); err != nil {
		t.Fatalf("DeleteTweet failed: %v", err)
	}
	deleted := models.TweetEvent{Type: models.TweetDeleted, TweetID: "100", AuthorID: "author"}
	for _, msg := range []kafka.Message{eventMessage(t, deleted), eventMessage(t, createdEvent())} {
		if err := w.handle(ctx, msg); err != nil {
			t.Fatalf("worker failed: %v", err)
		}
	}

	for _, uid := range []string{"f1", "f2"} {
		if list, _ := mockStore.GetNotifications(ctx, uid, 10); len(list) != 0 {
			t.Fatalf("deleted tweet reached %s: %+v", uid, list)
		}
	}
}

func TestWorker_NoFollowers(t *testing.T) {
	mockStore := store.NewMock()
	w := New(mockStore, &appkafka.MockKafka{}, 1, 1)
	if err := w.handle(context.Background(), eventMessage(t, createdEvent())); err != nil {
		t.Fatalf("expected no error without followers, got: %v", err)
	}
}

// ---------- Negative tests ----------

// Simulate invalid event payloads
func TestWorker_InvalidEvent(t *testing.T) {
	w := New(store.NewMock(), &appkafka.MockKafka{}, 1, 1)
	for _, body := range []string{"{invalid-json}", `{"type":"tweet_liked","tweet_id":"1"}`} {
		if err := w.handle(context.Background(), kafka.Message{Value: []byte(body)}); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestWorker_StoreGetFollowersFail(t *testing.T) {
	w := New(&store.MockStoreFail{}, &appkafka.MockKafka{}, 1, 1)
	if err := w.handle(context.Background(), eventMessage(t, createdEvent())); err == nil {
		t.Fatalf("expected error from store GetFollowerIDs, got nil")
	}
}

// failingInbox lists followers but rejects every notification.
type failingInbox struct {
	*store.MockStore
}

func (failingInbox) AddNotification(context.Context, models.Notification) error {
	return errors.New("inbox unavailable")
}

func TestWorker_StoreAddNotificationFail(t *testing.T) {
	mockStore := store.NewMock()
	seedGraph(t, mockStore)
	w := New(failingInbox{mockStore}, &appkafka.MockKafka{}, 1, 1)

	err := w.handle(context.Background(), eventMessage(t, createdEvent()))
	var merr *multierror.Error
	if !errors.As(err, &merr) || len(merr.Errors) != 2 {
		t.Fatalf("expected one error per follower, got: %v", err)
	}
}

// Simulate Kafka read errors: Run keeps backing off until the context ends.
func TestWorker_KafkaReadError(t *testing.T) {
	w := New(store.NewMock(), &appkafka.MockKafkaFail{}, 1, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after read errors")
	}
}

func TestWorker_CloseReportsErrors(t *testing.T) {
	w := New(store.NewMock(), &appkafka.MockKafkaFail{}, 1, 1)
	if err := w.Close(); err == nil {
		t.Fatal("expected reader close error")
	}
}
