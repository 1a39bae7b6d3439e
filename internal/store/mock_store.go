package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"example.com/tweetfeed/internal/models"
	"github.com/google/uuid"
)

// MockStore simulates the relational store in memory for testing.
type MockStore struct {
	mu            sync.Mutex
	Users         map[string]models.User // by id
	Follows       map[models.Follow]time.Time
	Tweets        map[string]models.Tweet
	Likes         map[string][]string // tweet id -> user ids
	Replies       map[string][]mockReply
	Notifications map[string][]models.Notification // user id -> inbox
}

type mockReply struct {
	UserID string
	Text   string
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:         make(map[string]models.User),
		Follows:       make(map[models.Follow]time.Time),
		Tweets:        make(map[string]models.Tweet),
		Likes:         make(map[string][]string),
		Replies:       make(map[string][]mockReply),
		Notifications: make(map[string][]models.Notification),
	}
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) CreateUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == user.Username {
			return ErrUserExists
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	m.Users[user.ID] = user
	return nil
}

func (m *MockStore) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *MockStore) CreateFollow(_ context.Context, followerID, followeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
	if _, ok := m.Follows[key]; !ok {
		m.Follows[key] = time.Now()
	}
	return nil
}

func (m *MockStore) DeleteFollow(_ context.Context, followerID, followeeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := models.Follow{FollowerID: followerID, FolloweeID: followeeID}
	if _, ok := m.Follows[key]; !ok {
		return ErrNotFound
	}
	delete(m.Follows, key)
	return nil
}

func (m *MockStore) GetFollowingIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []string{}
	for f := range m.Follows {
		if f.FollowerID == userID {
			res = append(res, f.FolloweeID)
		}
	}
	return res, nil
}

func (m *MockStore) GetFollowerIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []string{}
	for f := range m.Follows {
		if f.FolloweeID == userID {
			res = append(res, f.FollowerID)
		}
	}
	return res, nil
}

func (m *MockStore) GetFollowingNames(_ context.Context, userID string, limit int) ([]string, error) {
	return m.followNames(limit, func(f models.Follow) (string, bool) {
		return f.FolloweeID, f.FollowerID == userID
	}), nil
}

func (m *MockStore) GetFollowerNames(_ context.Context, userID string, limit int) ([]string, error) {
	return m.followNames(limit, func(f models.Follow) (string, bool) {
		return f.FollowerID, f.FolloweeID == userID
	}), nil
}

// followNames orders by follow time, then username, like the SQL store.
func (m *MockStore) followNames(limit int, pick func(models.Follow) (string, bool)) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	type edge struct {
		at   time.Time
		user models.User
	}
	var edges []edge
	for f, at := range m.Follows {
		if id, ok := pick(f); ok {
			edges = append(edges, edge{at: at, user: m.Users[id]})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].at.Equal(edges[j].at) {
			return edges[i].at.Before(edges[j].at)
		}
		return edges[i].user.Username < edges[j].user.Username
	})

	res := []string{}
	for _, e := range edges {
		res = append(res, e.user.Name)
	}
	return truncate(res, limit)
}

func (m *MockStore) AddTweet(_ context.Context, tweet models.Tweet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tweets[tweet.ID] = tweet
	return nil
}

func (m *MockStore) DeleteTweet(_ context.Context, authorID, tweetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tweets[tweetID]
	if !ok || t.AuthorID != authorID {
		return ErrNotFound
	}
	delete(m.Tweets, tweetID)
	delete(m.Likes, tweetID)
	delete(m.Replies, tweetID)
	m.dropNotifications(tweetID)
	return nil
}

func (m *MockStore) CanViewTweet(_ context.Context, userID, tweetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tweets[tweetID]
	if !ok {
		return false, nil
	}
	_, follows := m.Follows[models.Follow{FollowerID: userID, FolloweeID: t.AuthorID}]
	return follows, nil
}

func (m *MockStore) GetTweetsByAuthors(_ context.Context, authorIDs []string, limit int) ([]models.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []models.FeedItem{}
	authors := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	for _, t := range m.sortedTweets() {
		if authors[t.AuthorID] {
			res = append(res, models.FeedItem{
				TweetID:        t.ID,
				AuthorUsername: m.Users[t.AuthorID].Username,
				Text:           t.Text,
				Created:        t.Created,
			})
		}
	}
	return truncate(res, limit), nil
}

func (m *MockStore) GetTweetDetail(_ context.Context, tweetID string) (models.TweetDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tweets[tweetID]
	if !ok {
		return models.TweetDetail{}, ErrNotFound
	}
	return m.detail(t), nil
}

func (m *MockStore) GetUserTweets(_ context.Context, userID string, limit int) ([]models.TweetDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []models.TweetDetail{}
	for _, t := range m.sortedTweets() {
		if t.AuthorID == userID {
			res = append(res, m.detail(t))
		}
	}
	return truncate(res, limit), nil
}

func (m *MockStore) GetTweetLikers(_ context.Context, tweetID string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []string{}
	for _, uid := range m.Likes[tweetID] {
		res = append(res, m.Users[uid].Username)
	}
	return truncate(res, limit), nil
}

func (m *MockStore) GetTweetReplies(_ context.Context, tweetID string, limit int) ([]models.Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []models.Reply{}
	for _, r := range m.Replies[tweetID] {
		res = append(res, models.Reply{Name: m.Users[r.UserID].Name, Text: r.Text})
	}
	return truncate(res, limit), nil
}

func (m *MockStore) AddLike(_ context.Context, tweetID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, uid := range m.Likes[tweetID] {
		if uid == userID {
			return nil
		}
	}
	m.Likes[tweetID] = append(m.Likes[tweetID], userID)
	return nil
}

func (m *MockStore) AddReply(_ context.Context, tweetID, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replies[tweetID] = append(m.Replies[tweetID], mockReply{UserID: userID, Text: text})
	return nil
}

// AddNotification skips tweets that no longer exist.
func (m *MockStore) AddNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Tweets[n.TweetID]; !ok {
		return nil
	}
	for _, existing := range m.Notifications[n.UserID] {
		if existing.TweetID == n.TweetID {
			return nil
		}
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m.Notifications[n.UserID] = append(m.Notifications[n.UserID], n)
	return nil
}

func (m *MockStore) DeleteNotificationsForTweet(_ context.Context, tweetID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropNotifications(tweetID)
	return nil
}

// dropNotifications expects m.mu to be held.
func (m *MockStore) dropNotifications(tweetID string) {
	for uid, inbox := range m.Notifications {
		kept := inbox[:0]
		for _, n := range inbox {
			if n.TweetID != tweetID {
				kept = append(kept, n)
			}
		}
		m.Notifications[uid] = kept
	}
}

func (m *MockStore) GetNotifications(_ context.Context, userID string, limit int) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := append([]models.Notification{}, m.Notifications[userID]...)
	sort.SliceStable(res, func(i, j int) bool { return res[i].Created.After(res[j].Created) })
	return truncate(res, limit), nil
}

// sortedTweets orders newest first with the id as tie-break, like the SQL store.
func (m *MockStore) sortedTweets() []models.Tweet {
	res := make([]models.Tweet, 0, len(m.Tweets))
	for _, t := range m.Tweets {
		res = append(res, t)
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Created.Equal(res[j].Created) {
			return res[i].Created.After(res[j].Created)
		}
		return res[i].ID > res[j].ID
	})
	return res
}

func (m *MockStore) detail(t models.Tweet) models.TweetDetail {
	return models.TweetDetail{
		ID:      t.ID,
		Text:    t.Text,
		Likes:   len(m.Likes[t.ID]),
		Replies: len(m.Replies[t.ID]),
		Created: t.Created,
	}
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store failure")

func (m *MockStoreFail) Close() error { return nil }

func (m *MockStoreFail) CreateUser(context.Context, models.User) error { return errMockFail }

func (m *MockStoreFail) GetUserByUsername(context.Context, string) (models.User, error) {
	return models.User{}, errMockFail
}

func (m *MockStoreFail) CreateFollow(context.Context, string, string) error { return errMockFail }

func (m *MockStoreFail) DeleteFollow(context.Context, string, string) error { return errMockFail }

func (m *MockStoreFail) GetFollowingIDs(context.Context, string) ([]string, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetFollowerIDs(context.Context, string) ([]string, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetFollowingNames(context.Context, string, int) ([]string, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetFollowerNames(context.Context, string, int) ([]string, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) AddTweet(context.Context, models.Tweet) error { return errMockFail }

func (m *MockStoreFail) DeleteTweet(context.Context, string, string) error { return errMockFail }

func (m *MockStoreFail) CanViewTweet(context.Context, string, string) (bool, error) {
	return false, errMockFail
}

func (m *MockStoreFail) GetTweetsByAuthors(context.Context, []string, int) ([]models.FeedItem, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetTweetDetail(context.Context, string) (models.TweetDetail, error) {
	return models.TweetDetail{}, errMockFail
}

func (m *MockStoreFail) GetUserTweets(context.Context, string, int) ([]models.TweetDetail, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetTweetLikers(context.Context, string, int) ([]string, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) GetTweetReplies(context.Context, string, int) ([]models.Reply, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) AddLike(context.Context, string, string) error { return errMockFail }

func (m *MockStoreFail) AddReply(context.Context, string, string, string) error { return errMockFail }

func (m *MockStoreFail) AddNotification(context.Context, models.Notification) error {
	return errMockFail
}

func (m *MockStoreFail) DeleteNotificationsForTweet(context.Context, string) error {
	return errMockFail
}

func (m *MockStoreFail) GetNotifications(context.Context, string, int) ([]models.Notification, error) {
	return nil, errMockFail
}
