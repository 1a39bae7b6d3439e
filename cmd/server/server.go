package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"example.com/tweetfeed/internal/auth"
	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/feed"
	"example.com/tweetfeed/internal/logger"
	"example.com/tweetfeed/internal/middleware"
	"example.com/tweetfeed/internal/store"
	"github.com/gin-gonic/gin"
)

var logg = logger.New()

// Options carries the request-path settings that are not dependencies.
type Options struct {
	ListLimit   int
	BcryptCost  int
	CORSOrigins []string
	Version     string
}

type Server struct {
	store  store.StoreInterface
	events appkafka.KafkaWriter
	tokens *auth.TokenService
	feed   *feed.Resolver
	opts   Options
	router *gin.Engine
}

// New wires the routes. A nil events writer disables publishing.
func New(st store.StoreInterface, events appkafka.KafkaWriter, tokens *auth.TokenService, resolver *feed.Resolver, opts Options) *Server {
	if events == nil {
		events = appkafka.NopWriter{}
	}
	if opts.ListLimit <= 0 {
		opts.ListLimit = 100
	}
	s := &Server{
		store:  st,
		events: events,
		tokens: tokens,
		feed:   resolver,
		opts:   opts,
	}
	s.router = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger(), middleware.CORS(s.opts.CORSOrigins))

	// Public endpoints
	r.GET("/health", s.healthHandler)
	r.POST("/register", s.registerHandler)
	r.POST("/login", s.loginHandler)

	authed := r.Group("/", middleware.Authenticate(s.tokens))

	user := authed.Group("/user")
	user.GET("/tweets/feed", s.feedHandler)
	user.GET("/following", s.followingHandler)
	user.GET("/followers", s.followersHandler)
	user.POST("/following", s.followHandler)
	user.DELETE("/following/:username", s.unfollowHandler)
	user.GET("/tweets", s.userTweetsHandler)
	user.POST("/tweets", s.createTweetHandler)
	user.GET("/notifications", s.notificationsHandler)

	// Deleting checks authorship instead of follow visibility.
	authed.DELETE("/tweets/:tweetId", s.deleteTweetHandler)

	tweets := authed.Group("/tweets/:tweetId", middleware.TweetVisibility(s.store, "tweetId"))
	tweets.GET("", s.tweetHandler)
	tweets.GET("/likes", s.likesHandler)
	tweets.GET("/replies", s.repliesHandler)
	tweets.POST("/likes", s.likeHandler)
	tweets.POST("/replies", s.replyHandler)

	return r
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln, certFile, keyFile)
}

// Serve serves HTTPS when both certFile and keyFile are set and plain HTTP otherwise,
// then shuts down gracefully once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener, certFile, keyFile string) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second, // prevent slowloris attacks
		WriteTimeout:      10 * time.Second,
	}

	// --- Start server in a goroutine ---
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+ln.Addr().String())
			err = srv.ServeTLS(ln, certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+ln.Addr().String())
			err = srv.Serve(ln)
		}
		serveErr <- err
	}()

	// --- Graceful shutdown ---
	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logg.Error("server", "Server stopped unexpectedly", err)
		return err
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
