package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"example.com/tweetfeed/internal/logger"
	"example.com/tweetfeed/internal/models"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var logg = logger.New()

//go:embed migrations
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a row does not exist or the caller may not touch it.
	ErrNotFound = errors.New("not found")
	// ErrUserExists is returned when registering a username that is already taken.
	ErrUserExists = errors.New("user already exists")
)

// --- Interfaces ---

type StoreInterface interface {
	// Credential store
	CreateUser(ctx context.Context, user models.User) error
	GetUserByUsername(ctx context.Context, username string) (models.User, error)

	// Social graph
	CreateFollow(ctx context.Context, followerID, followeeID string) error
	DeleteFollow(ctx context.Context, followerID, followeeID string) error
	GetFollowingIDs(ctx context.Context, userID string) ([]string, error)
	GetFollowerIDs(ctx context.Context, userID string) ([]string, error)
	GetFollowingNames(ctx context.Context, userID string, limit int) ([]string, error)
	GetFollowerNames(ctx context.Context, userID string, limit int) ([]string, error)

	// Content
	AddTweet(ctx context.Context, tweet models.Tweet) error
	DeleteTweet(ctx context.Context, authorID, tweetID string) error
	CanViewTweet(ctx context.Context, userID, tweetID string) (bool, error)
	GetTweetsByAuthors(ctx context.Context, authorIDs []string, limit int) ([]models.FeedItem, error)
	GetTweetDetail(ctx context.Context, tweetID string) (models.TweetDetail, error)
	GetUserTweets(ctx context.Context, userID string, limit int) ([]models.TweetDetail, error)
	GetTweetLikers(ctx context.Context, tweetID string, limit int) ([]string, error)
	GetTweetReplies(ctx context.Context, tweetID string, limit int) ([]models.Reply, error)
	AddLike(ctx context.Context, tweetID, userID string) error
	AddReply(ctx context.Context, tweetID, userID, text string) error

	// Notifications
	AddNotification(ctx context.Context, n models.Notification) error
	DeleteNotificationsForTweet(ctx context.Context, tweetID string) error
	GetNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)

	Close() error
}

var (
	_ StoreInterface = (*Store)(nil)
	_ StoreInterface = (*MockStore)(nil)
	_ StoreInterface = (*MockStoreFail)(nil)
)

// --- Store Implementation ---

type dialect string

const (
	SQLite   dialect = "sqlite"
	Postgres dialect = "postgres"
)

// Store is the relational StoreInterface implementation shared by SQLite and Postgres.
type Store struct {
	DB      *sql.DB
	dialect dialect
}

// New opens the database named by driver ("sqlite" or "postgres"), applies migrations
// and returns a ready store.
func New(ctx context.Context, driver, dsn string) (*Store, error) {
	d := dialect(driver)
	var sqlDriver string
	switch d {
	case SQLite:
		sqlDriver = "sqlite"
	case Postgres:
		sqlDriver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d, err)
	}
	if d == SQLite {
		// SQLite serializes writers; one connection keeps ":memory:" databases coherent too.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d, err)
	}

	s := &Store{DB: db, dialect: d}
	if err := s.migrate(dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logg.Info("store", "Connected to "+string(d)+" database (dsn anonymized)")
	return s, nil
}

// Migrate opens the database and applies migrations without keeping it open.
func Migrate(ctx context.Context, driver, dsn string) error {
	s, err := New(ctx, driver, dsn)
	if err != nil {
		return err
	}
	return s.Close()
}

// --- Migration runner ---

func (s *Store) migrate(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	var drv database.Driver
	switch s.dialect {
	case SQLite:
		drv, err = sqlitemigrate.WithInstance(s.DB, &sqlitemigrate.Config{})
	case Postgres:
		// The pgx migrate driver pins a connection and closes its *sql.DB when done,
		// so it gets a handle of its own.
		var mdb *sql.DB
		mdb, err = sql.Open("pgx", dsn)
		if err == nil {
			drv, err = pgxmigrate.WithInstance(mdb, &pgxmigrate.Config{})
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(s.dialect), drv)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if s.dialect == Postgres {
		defer m.Close()
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// rebind rewrites '?' placeholders to the dialect's bind syntax.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Close closes the database pool.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	if err := s.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	logg.Info("store", "Database closed")
	return nil
}
