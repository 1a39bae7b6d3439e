package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/tweetfeed/internal/models"
	"github.com/google/uuid"
)

// --- User operations ---

// CreateUser inserts a user. A taken username yields ErrUserExists, including when a
// concurrent registration wins the race.
func (s *Store) CreateUser(ctx context.Context, user models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Created.IsZero() {
		user.Created = time.Now()
	}

	res, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO users (id, username, password_hash, name, gender, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (username) DO NOTHING`),
		user.ID, user.Username, user.PasswordHash, user.Name, user.Gender, user.Created.UTC(),
	)
	if err != nil {
		logg.Error("store", "Failed to create user", err)
		return fmt.Errorf("create user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("create user: %w", err)
	} else if n == 0 {
		return ErrUserExists
	}

	logg.Info("store", "User created successfully (username anonymized)")
	return nil
}

// GetUserByUsername returns ErrNotFound when no such user exists.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT id, username, password_hash, name, gender, created_at
		FROM users WHERE username = ?`),
		username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Gender, &u.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query user by username", err)
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// --- Follow operations ---

// CreateFollow is idempotent.
func (s *Store) CreateFollow(ctx context.Context, followerID, followeeID string) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO follows (follower_id, followee_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`),
		followerID, followeeID, time.Now().UTC(),
	); err != nil {
		logg.Error("store", "Failed to create follow relationship", err)
		return fmt.Errorf("create follow: %w", err)
	}

	logg.Info("store", "Follow relationship created (user IDs anonymized)")
	return nil
}

// DeleteFollow returns ErrNotFound when the edge does not exist.
func (s *Store) DeleteFollow(ctx context.Context, followerID, followeeID string) error {
	res, err := s.DB.ExecContext(ctx, s.rebind(
		`DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`),
		followerID, followeeID,
	)
	if err != nil {
		logg.Error("store", "Failed to delete follow relationship", err)
		return fmt.Errorf("delete follow: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, "following ids",
		`SELECT followee_id FROM follows WHERE follower_id = ?`, userID)
}

func (s *Store) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	return s.queryStrings(ctx, "follower ids",
		`SELECT follower_id FROM follows WHERE followee_id = ?`, userID)
}

func (s *Store) GetFollowingNames(ctx context.Context, userID string, limit int) ([]string, error) {
	return s.queryStrings(ctx, "following names", `
		SELECT u.name FROM follows f
		JOIN users u ON u.id = f.followee_id
		WHERE f.follower_id = ?
		ORDER BY f.created_at, u.username
		LIMIT ?`, userID, limit)
}

func (s *Store) GetFollowerNames(ctx context.Context, userID string, limit int) ([]string, error) {
	return s.queryStrings(ctx, "follower names", `
		SELECT u.name FROM follows f
		JOIN users u ON u.id = f.follower_id
		WHERE f.followee_id = ?
		ORDER BY f.created_at, u.username
		LIMIT ?`, userID, limit)
}

// --- Tweet operations ---

func (s *Store) AddTweet(ctx context.Context, tweet models.Tweet) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO tweets (id, author_id, text, created_at)
		VALUES (?, ?, ?, ?)`),
		tweet.ID, tweet.AuthorID, tweet.Text, tweet.Created.UTC(),
	); err != nil {
		logg.Error("store", "Failed to add tweet", err)
		return fmt.Errorf("add tweet: %w", err)
	}

	logg.Info("store", "Tweet added (content anonymized)")
	return nil
}

// DeleteTweet removes a tweet authored by authorID together with its likes, replies and
// notifications.
// A missing tweet and a tweet owned by someone else both yield ErrNotFound.
func (s *Store) DeleteTweet(ctx context.Context, authorID, tweetID string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete tweet: %w", err)
	}
	defer tx.Rollback()

	owned := `SELECT id FROM tweets WHERE id = ? AND author_id = ?`
	for _, child := range []string{"likes", "replies", "notifications"} {
		if _, err := tx.ExecContext(ctx, s.rebind(
			`DELETE FROM `+child+` WHERE tweet_id IN (`+owned+`)`),
			tweetID, authorID,
		); err != nil {
			logg.Error("store", "Failed to delete tweet "+child, err)
			return fmt.Errorf("delete tweet %s: %w", child, err)
		}
	}

	res, err := tx.ExecContext(ctx, s.rebind(
		`DELETE FROM tweets WHERE id = ? AND author_id = ?`),
		tweetID, authorID,
	)
	if err != nil {
		logg.Error("store", "Failed to delete tweet", err)
		return fmt.Errorf("delete tweet: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete tweet: %w", err)
	}
	logg.Info("store", "Tweet deleted")
	return nil
}

// CanViewTweet reports whether userID follows the author of tweetID.
func (s *Store) CanViewTweet(ctx context.Context, userID, tweetID string) (bool, error) {
	var one int
	err := s.DB.QueryRowContext(ctx, s.rebind(`
		SELECT 1 FROM tweets t
		JOIN follows f ON f.followee_id = t.author_id
		WHERE t.id = ? AND f.follower_id = ?
		LIMIT 1`),
		tweetID, userID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		logg.Error("store", "Failed to check tweet visibility", err)
		return false, fmt.Errorf("check tweet visibility: %w", err)
	}
	return true, nil
}

// GetTweetsByAuthors returns the newest tweets of the given authors. An empty author set
// returns an empty result without touching the database.
func (s *Store) GetTweetsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]models.FeedItem, error) {
	res := []models.FeedItem{}
	if len(authorIDs) == 0 {
		return res, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(authorIDs)), ", ")
	args := make([]any, 0, len(authorIDs)+1)
	for _, id := range authorIDs {
		args = append(args, id)
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT t.id, u.username, t.text, t.created_at
		FROM tweets t
		JOIN users u ON u.id = t.author_id
		WHERE t.author_id IN (`+placeholders+`)
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`), args...)
	if err != nil {
		logg.Error("store", "Failed to query feed tweets", err)
		return nil, fmt.Errorf("query feed tweets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.FeedItem
		if err := rows.Scan(&it.TweetID, &it.AuthorUsername, &it.Text, &it.Created); err != nil {
			return nil, fmt.Errorf("scan feed tweet: %w", err)
		}
		res = append(res, it)
	}
	if err := rows.Err(); err != nil {
		logg.Error("store", "Failed to retrieve feed tweets", err)
		return nil, fmt.Errorf("query feed tweets: %w", err)
	}
	return res, nil
}

const tweetDetailColumns = `
	SELECT t.id, t.text,
		(SELECT COUNT(*) FROM likes l WHERE l.tweet_id = t.id),
		(SELECT COUNT(*) FROM replies r WHERE r.tweet_id = t.id),
		t.created_at
	FROM tweets t`

func (s *Store) GetTweetDetail(ctx context.Context, tweetID string) (models.TweetDetail, error) {
	var d models.TweetDetail
	err := s.DB.QueryRowContext(ctx, s.rebind(tweetDetailColumns+` WHERE t.id = ?`), tweetID).
		Scan(&d.ID, &d.Text, &d.Likes, &d.Replies, &d.Created)
	if errors.Is(err, sql.ErrNoRows) {
		return models.TweetDetail{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query tweet detail", err)
		return models.TweetDetail{}, fmt.Errorf("get tweet detail: %w", err)
	}
	return d, nil
}

func (s *Store) GetUserTweets(ctx context.Context, userID string, limit int) ([]models.TweetDetail, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(tweetDetailColumns+`
		WHERE t.author_id = ?
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		logg.Error("store", "Failed to query user tweets", err)
		return nil, fmt.Errorf("query user tweets: %w", err)
	}
	defer rows.Close()

	res := []models.TweetDetail{}
	for rows.Next() {
		var d models.TweetDetail
		if err := rows.Scan(&d.ID, &d.Text, &d.Likes, &d.Replies, &d.Created); err != nil {
			return nil, fmt.Errorf("scan user tweet: %w", err)
		}
		res = append(res, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query user tweets: %w", err)
	}
	return res, nil
}

func (s *Store) GetTweetLikers(ctx context.Context, tweetID string, limit int) ([]string, error) {
	return s.queryStrings(ctx, "tweet likers", `
		SELECT u.username FROM likes l
		JOIN users u ON u.id = l.user_id
		WHERE l.tweet_id = ?
		ORDER BY l.created_at, l.id
		LIMIT ?`, tweetID, limit)
}

func (s *Store) GetTweetReplies(ctx context.Context, tweetID string, limit int) ([]models.Reply, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT u.name, r.text FROM replies r
		JOIN users u ON u.id = r.user_id
		WHERE r.tweet_id = ?
		ORDER BY r.created_at, r.id
		LIMIT ?`), tweetID, limit)
	if err != nil {
		logg.Error("store", "Failed to query tweet replies", err)
		return nil, fmt.Errorf("query tweet replies: %w", err)
	}
	defer rows.Close()

	res := []models.Reply{}
	for rows.Next() {
		var r models.Reply
		if err := rows.Scan(&r.Name, &r.Text); err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		res = append(res, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query tweet replies: %w", err)
	}
	return res, nil
}

// AddLike is idempotent per (tweet, user).
func (s *Store) AddLike(ctx context.Context, tweetID, userID string) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO likes (id, tweet_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (tweet_id, user_id) DO NOTHING`),
		uuid.NewString(), tweetID, userID, time.Now().UTC(),
	); err != nil {
		logg.Error("store", "Failed to add like", err)
		return fmt.Errorf("add like: %w", err)
	}
	return nil
}

func (s *Store) AddReply(ctx context.Context, tweetID, userID, text string) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO replies (id, tweet_id, user_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		uuid.NewString(), tweetID, userID, text, time.Now().UTC(),
	); err != nil {
		logg.Error("store", "Failed to add reply", err)
		return fmt.Errorf("add reply: %w", err)
	}
	return nil
}

// --- Notification operations ---

// AddNotification ignores redelivered notifications for the same (user, tweet) and
// notifications for tweets that no longer exist.
func (s *Store) AddNotification(ctx context.Context, n models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	// Text and time come from the tweet row, so a tweet deleted before its event was
	// handled yields no notification.
	if _, err := s.DB.ExecContext(ctx, s.rebind(`
		INSERT INTO notifications (id, user_id, tweet_id, author_username, text, created_at)
		SELECT ?, ?, t.id, ?, t.text, t.created_at
		FROM tweets t WHERE t.id = ?
		ON CONFLICT (user_id, tweet_id) DO NOTHING`),
		n.ID, n.UserID, n.AuthorUsername, n.TweetID,
	); err != nil {
		logg.Error("store", "Failed to add notification", err)
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}

func (s *Store) DeleteNotificationsForTweet(ctx context.Context, tweetID string) error {
	if _, err := s.DB.ExecContext(ctx, s.rebind(
		`DELETE FROM notifications WHERE tweet_id = ?`), tweetID,
	); err != nil {
		logg.Error("store", "Failed to delete notifications", err)
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (s *Store) GetNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(`
		SELECT id, user_id, tweet_id, author_username, text, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), userID, limit)
	if err != nil {
		logg.Error("store", "Failed to query notifications", err)
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	res := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.TweetID, &n.AuthorUsername, &n.Text, &n.Created); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	return res, nil
}

// --- helpers ---

func (s *Store) queryStrings(ctx context.Context, what, query string, args ...any) ([]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		logg.Error("store", "Failed to query "+what, err)
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	res := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		res = append(res, v)
	}
	if err := rows.Err(); err != nil {
		logg.Error("store", "Failed to query "+what, err)
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	return res, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
