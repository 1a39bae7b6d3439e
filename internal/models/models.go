package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Gender       string    `json:"gender"`
	Created      time.Time `json:"created"`
}

type Tweet struct {
	ID       string    `json:"id"`
	AuthorID string    `json:"author_id"`
	Text     string    `json:"tweet"`
	Created  time.Time `json:"dateTime"`
}

// FeedItem is one entry of a user's home feed.
type FeedItem struct {
	TweetID        string    `json:"id"`
	AuthorUsername string    `json:"username"`
	Text           string    `json:"tweet"`
	Created        time.Time `json:"dateTime"`
}

// TweetDetail is a tweet with its like and reply counts.
type TweetDetail struct {
	ID      string    `json:"id"`
	Text    string    `json:"tweet"`
	Likes   int       `json:"likes"`
	Replies int       `json:"replies"`
	Created time.Time `json:"dateTime"`
}

type Reply struct {
	Name string `json:"name"`
	Text string `json:"reply"`
}

type Follow struct {
	FollowerID string `json:"follower_id"`
	FolloweeID string `json:"followee_id"`
}

// Notification tells a follower that someone they follow tweeted.
type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"-"`
	TweetID        string    `json:"tweet_id"`
	AuthorUsername string    `json:"username"`
	Text           string    `json:"tweet"`
	Created        time.Time `json:"dateTime"`
}

type TweetEventType string

const (
	TweetCreated TweetEventType = "tweet_created"
	TweetDeleted TweetEventType = "tweet_deleted"
)

// TweetEvent is the message published to the broker for every tweet mutation.
type TweetEvent struct {
	Type           TweetEventType `json:"type"`
	TweetID        string         `json:"tweet_id"`
	AuthorID       string         `json:"author_id"`
	AuthorUsername string         `json:"author_username"`
	Text           string         `json:"text,omitempty"`
	Created        time.Time      `json:"created"`
}
