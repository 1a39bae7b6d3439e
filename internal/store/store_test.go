package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"example.com/tweetfeed/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), "sqlite", "file::memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, username string) models.User {
	t.Helper()
	u := models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: "hash",
		Name:         "Name " + username,
		Gender:       "female",
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func seedTweet(t *testing.T, s *Store, author models.User, text string, at time.Time) models.Tweet {
	t.Helper()
	id, err := uuid.NewV7()
	require.NoError(t, err)
	tw := models.Tweet{ID: id.String(), AuthorID: author.ID, Text: text, Created: at}
	require.NoError(t, s.AddTweet(context.Background(), tw))
	return tw
}

func texts(items []models.FeedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Text)
	}
	return out
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := New(context.Background(), "cassandra", "")
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	assert.Equal(t, "SELECT $1, $2 LIMIT $3", pg.rebind("SELECT ?, ? LIMIT ?"))

	lite := &Store{dialect: SQLite}
	assert.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedUser(t, s, "alice")

	err := s.CreateUser(ctx, models.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := s.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Name alice", got.Name)
	assert.Equal(t, "hash", got.PasswordHash)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCanViewTweet(t *testing.T) {
	ctx := context.Background()

	t.Run("empty graph", func(t *testing.T) {
		s := newTestStore(t)
		a, b := seedUser(t, s, "a"), seedUser(t, s, "b")
		tw := seedTweet(t, s, b, "hi", time.Now())

		ok, err := s.CanViewTweet(ctx, a.ID, tw.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("single edge", func(t *testing.T) {
		s := newTestStore(t)
		a, b := seedUser(t, s, "a"), seedUser(t, s, "b")
		tw := seedTweet(t, s, b, "hi", time.Now())
		require.NoError(t, s.CreateFollow(ctx, a.ID, b.ID))

		ok, err := s.CanViewTweet(ctx, a.ID, tw.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		// Edges are directed.
		own := seedTweet(t, s, a, "mine", time.Now())
		ok, err = s.CanViewTweet(ctx, b.ID, own.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("multi edge", func(t *testing.T) {
		s := newTestStore(t)
		a, b, c, d := seedUser(t, s, "a"), seedUser(t, s, "b"), seedUser(t, s, "c"), seedUser(t, s, "d")
		require.NoError(t, s.CreateFollow(ctx, a.ID, b.ID))
		require.NoError(t, s.CreateFollow(ctx, a.ID, c.ID))
		require.NoError(t, s.CreateFollow(ctx, a.ID, c.ID)) // idempotent
		require.NoError(t, s.CreateFollow(ctx, d.ID, b.ID))

		tb := seedTweet(t, s, b, "b", time.Now())
		tc := seedTweet(t, s, c, "c", time.Now())
		td := seedTweet(t, s, d, "d", time.Now())

		for _, tt := range []struct {
			user, tweet string
			want        bool
		}{
			{a.ID, tb.ID, true},
			{a.ID, tc.ID, true},
			{a.ID, td.ID, false},
			{d.ID, tb.ID, true},
			{d.ID, tc.ID, false},
			{a.ID, "missing", false},
		} {
			ok, err := s.CanViewTweet(ctx, tt.user, tt.tweet)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok, "user=%s tweet=%s", tt.user, tt.tweet)
		}
	})
}

func TestGetTweetsByAuthors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := seedUser(t, s, "a"), seedUser(t, s, "b")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		author := a
		if i%2 == 1 {
			author = b
		}
		seedTweet(t, s, author, fmt.Sprintf("t%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	t.Run("empty author set", func(t *testing.T) {
		items, err := s.GetTweetsByAuthors(ctx, nil, 4)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("newest first with limit", func(t *testing.T) {
		items, err := s.GetTweetsByAuthors(ctx, []string{a.ID, b.ID}, 4)
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, []string{"t5", "t4", "t3", "t2"}, texts(items))
		assert.Equal(t, "b", items[0].AuthorUsername)
		assert.True(t, items[0].Created.Equal(base.Add(5*time.Minute)))
	})

	t.Run("single author", func(t *testing.T) {
		items, err := s.GetTweetsByAuthors(ctx, []string{a.ID}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"t4", "t2", "t0"}, texts(items))
	})
}

func TestGetTweetsByAuthors_TieBreakIsCreationOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := seedUser(t, s, "a")

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seedTweet(t, s, a, "first", at)
	seedTweet(t, s, a, "second", at)
	seedTweet(t, s, a, "third", at)

	items, err := s.GetTweetsByAuthors(ctx, []string{a.ID}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, texts(items))
}

func TestDeleteTweet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := seedUser(t, s, "a"), seedUser(t, s, "b")
	tw := seedTweet(t, s, a, "bye", time.Now())
	require.NoError(t, s.AddLike(ctx, tw.ID, b.ID))
	require.NoError(t, s.AddReply(ctx, tw.ID, b.ID, "nice"))
	require.NoError(t, s.AddNotification(ctx, models.Notification{UserID: b.ID, TweetID: tw.ID, AuthorUsername: "a"}))

	notOwner := s.DeleteTweet(ctx, b.ID, tw.ID)
	missing := s.DeleteTweet(ctx, a.ID, "no-such-tweet")
	assert.ErrorIs(t, notOwner, ErrNotFound)
	assert.ErrorIs(t, missing, ErrNotFound)

	// The failed attempt by b must leave likes and replies in place.
	d, err := s.GetTweetDetail(ctx, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Likes)
	assert.Equal(t, 1, d.Replies)
	inbox, err := s.GetNotifications(ctx, b.ID, 10)
	require.NoError(t, err)
	assert.Len(t, inbox, 1)

	require.NoError(t, s.DeleteTweet(ctx, a.ID, tw.ID))
	_, err = s.GetTweetDetail(ctx, tw.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	likers, err := s.GetTweetLikers(ctx, tw.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, likers)

	inbox, err = s.GetNotifications(ctx, b.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, inbox, "notifications go with the tweet")
}

func TestTweetDetailLikesAndReplies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := seedUser(t, s, "a"), seedUser(t, s, "b"), seedUser(t, s, "c")
	tw := seedTweet(t, s, a, "hello", time.Now())

	require.NoError(t, s.AddLike(ctx, tw.ID, b.ID))
	require.NoError(t, s.AddLike(ctx, tw.ID, b.ID)) // idempotent
	require.NoError(t, s.AddLike(ctx, tw.ID, c.ID))
	require.NoError(t, s.AddReply(ctx, tw.ID, c.ID, "first!"))

	d, err := s.GetTweetDetail(ctx, tw.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Text)
	assert.Equal(t, 2, d.Likes)
	assert.Equal(t, 1, d.Replies)

	likers, err := s.GetTweetLikers(ctx, tw.ID, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b", "c"}, likers)

	replies, err := s.GetTweetReplies(ctx, tw.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []models.Reply{{Name: "Name c", Text: "first!"}}, replies)

	own, err := s.GetUserTweets(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, 2, own[0].Likes)
}

func TestFollowLists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b, c := seedUser(t, s, "a"), seedUser(t, s, "b"), seedUser(t, s, "c")
	require.NoError(t, s.CreateFollow(ctx, a.ID, b.ID))
	require.NoError(t, s.CreateFollow(ctx, a.ID, c.ID))
	require.NoError(t, s.CreateFollow(ctx, c.ID, a.ID))

	ids, err := s.GetFollowingIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{b.ID, c.ID}, ids)

	following, err := s.GetFollowingNames(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Name b", "Name c"}, following)

	followers, err := s.GetFollowerIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, followers)

	names, err := s.GetFollowerNames(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name c"}, names)

	require.NoError(t, s.DeleteFollow(ctx, a.ID, b.ID))
	assert.ErrorIs(t, s.DeleteFollow(ctx, a.ID, b.ID), ErrNotFound)

	ids, err = s.GetFollowingIDs(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, ids)
}

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := seedUser(t, s, "a"), seedUser(t, s, "b")
	now := time.Now()
	t1 := seedTweet(t, s, b, "one", now)
	t2 := seedTweet(t, s, b, "two", now.Add(time.Second))

	n1 := models.Notification{UserID: a.ID, TweetID: t1.ID, AuthorUsername: "b"}
	n2 := models.Notification{UserID: a.ID, TweetID: t2.ID, AuthorUsername: "b"}
	require.NoError(t, s.AddNotification(ctx, n1))
	require.NoError(t, s.AddNotification(ctx, n1)) // redelivery
	require.NoError(t, s.AddNotification(ctx, n2))

	got, err := s.GetNotifications(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, t2.ID, got[0].TweetID)
	assert.Equal(t, "two", got[0].Text)

	require.NoError(t, s.DeleteNotificationsForTweet(ctx, t2.ID))
	got, err = s.GetNotifications(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Text)
}

func TestAddNotification_DeletedTweet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := seedUser(t, s, "a"), seedUser(t, s, "b")
	tw := seedTweet(t, s, b, "gone soon", time.Now())
	require.NoError(t, s.DeleteTweet(ctx, b.ID, tw.ID))

	// A late tweet_created must not resurrect the deleted tweet's text.
	require.NoError(t, s.AddNotification(ctx, models.Notification{UserID: a.ID, TweetID: tw.ID, AuthorUsername: "b", Text: "gone soon"}))
	require.NoError(t, s.AddNotification(ctx, models.Notification{UserID: a.ID, TweetID: "never-existed", AuthorUsername: "b"}))

	got, err := s.GetNotifications(ctx, a.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMockStore_MatchesNotificationRules(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	tw := models.Tweet{ID: "t1", AuthorID: "b", Text: "secret", Created: time.Now()}
	require.NoError(t, m.AddTweet(ctx, tw))
	require.NoError(t, m.AddNotification(ctx, models.Notification{UserID: "a", TweetID: "t1", Text: "secret"}))

	got, _ := m.GetNotifications(ctx, "a", 10)
	require.Len(t, got, 1)

	require.NoError(t, m.DeleteTweet(ctx, "b", "t1"))
	got, _ = m.GetNotifications(ctx, "a", 10)
	assert.Empty(t, got, "deleting the tweet drops its notifications")

	require.NoError(t, m.AddNotification(ctx, models.Notification{UserID: "a", TweetID: "t1", Text: "secret"}))
	got, _ = m.GetNotifications(ctx, "a", 10)
	assert.Empty(t, got, "no notification for a deleted tweet")
}

func TestMockStore_FollowNamesKeepFollowOrder(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "a", Username: "a", Name: "Zed"},
		{ID: "b", Username: "b", Name: "Yan"},
		{ID: "c", Username: "c", Name: "Xia"},
		{ID: "d", Username: "d", Name: "Wu"},
	} {
		require.NoError(t, m.CreateUser(ctx, u))
	}

	base := time.Now()
	m.Follows[models.Follow{FollowerID: "d", FolloweeID: "a"}] = base
	m.Follows[models.Follow{FollowerID: "d", FolloweeID: "c"}] = base.Add(time.Second)
	m.Follows[models.Follow{FollowerID: "d", FolloweeID: "b"}] = base.Add(time.Second) // same time: username breaks the tie
	m.Follows[models.Follow{FollowerID: "c", FolloweeID: "a"}] = base.Add(2 * time.Second)

	following, err := m.GetFollowingNames(ctx, "d", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zed", "Yan", "Xia"}, following)

	followers, err := m.GetFollowerNames(ctx, "a", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Wu", "Xia"}, followers)

	limited, err := m.GetFollowingNames(ctx, "d", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zed", "Yan"}, limited)
}
