package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"example.com/tweetfeed/internal/auth"
	appkafka "example.com/tweetfeed/internal/broker"
	"example.com/tweetfeed/internal/middleware"
	"example.com/tweetfeed/internal/models"
	"example.com/tweetfeed/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidBody    = "Invalid request body"
	msgInvalidRequest = "Invalid Request"
	msgInternal       = "Internal server error"
)

func abortJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// identity returns the caller set by the Authenticate middleware.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		abortJSON(c, http.StatusUnauthorized, "Invalid JWT Token")
	}
	return id, ok
}

// --- Public handlers ---

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.opts.Version})
}

// registerHandler creates a user.
// Expects JSON body: {"username","password","name","gender"}
func (s *Server) registerHandler(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Name     string `json:"name"`
		Gender   string `json:"gender"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		logg.Error("http/register", "Invalid request body", err)
		abortJSON(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		abortJSON(c, http.StatusBadRequest, "Username and password are required")
		return
	}

	ctx := c.Request.Context()
	_, err := s.store.GetUserByUsername(ctx, body.Username)
	switch {
	case err == nil:
		abortJSON(c, http.StatusBadRequest, "User already exists")
		return
	case !errors.Is(err, store.ErrNotFound):
		logg.Error("http/register", "Failed to query existing username", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}

	hash, err := auth.HashPassword(body.Password, s.opts.BcryptCost)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		abortJSON(c, http.StatusBadRequest, "Password is too short")
		return
	case errors.Is(err, auth.ErrPasswordTooLong):
		abortJSON(c, http.StatusBadRequest, "Password is too long")
		return
	case err != nil:
		logg.Error("http/register", "Failed to hash password", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     body.Username,
		PasswordHash: hash,
		Name:         body.Name,
		Gender:       body.Gender,
		Created:      time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserExists) {
			abortJSON(c, http.StatusBadRequest, "User already exists")
			return
		}
		logg.Error("http/register", "Failed to create user", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}

	logg.Info("http/register", "User created successfully with user_id="+user.ID)
	c.JSON(http.StatusOK, gin.H{"message": "User created successfully"})
}

// loginHandler returns a signed token for valid credentials.
// Expects JSON body: {"username","password"}
func (s *Server) loginHandler(c *gin.Context) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		logg.Error("http/login", "Invalid request body", err)
		abortJSON(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	user, err := s.store.GetUserByUsername(c.Request.Context(), strings.TrimSpace(body.Username))
	if errors.Is(err, store.ErrNotFound) {
		abortJSON(c, http.StatusBadRequest, "Invalid user")
		return
	}
	if err != nil {
		logg.Error("http/login", "Failed to query user", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, body.Password); err != nil {
		abortJSON(c, http.StatusBadRequest, "Invalid password")
		return
	}

	token, err := s.tokens.Issue(auth.Identity{Username: user.Username, UserID: user.ID})
	if err != nil {
		logg.Error("http/login", "Failed to sign token", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	logg.Info("http/login", "Login succeeded for user_id="+user.ID)
	c.JSON(http.StatusOK, gin.H{"jwtToken": token})
}

// --- Social graph ---

func (s *Server) feedHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	items, err := s.feed.Resolve(c.Request.Context(), id.UserID)
	if err != nil {
		logg.Error("http/feed", "Failed to resolve feed for user_id="+id.UserID, err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, items)
}

type nameEntry struct {
	Name string `json:"name"`
}

func toNames(names []string) []nameEntry {
	res := make([]nameEntry, 0, len(names))
	for _, n := range names {
		res = append(res, nameEntry{Name: n})
	}
	return res
}

func (s *Server) followingHandler(c *gin.Context) {
	s.nameList(c, "http/following", s.store.GetFollowingNames)
}

func (s *Server) followersHandler(c *gin.Context) {
	s.nameList(c, "http/followers", s.store.GetFollowerNames)
}

func (s *Server) nameList(c *gin.Context, module string, list func(context.Context, string, int) ([]string, error)) {
	id, ok := identity(c)
	if !ok {
		return
	}
	names, err := list(c.Request.Context(), id.UserID, s.opts.ListLimit)
	if err != nil {
		logg.Error(module, "Failed to list users", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, toNames(names))
}

// followHandler makes the caller follow another user.
// Expects JSON body: {"username": "..."}
func (s *Server) followHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var body struct {
		Username string `json:"username"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Username) == "" {
		abortJSON(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	target, ok := s.lookupUser(c, "http/follow", strings.TrimSpace(body.Username))
	if !ok {
		return
	}
	if target.ID == id.UserID {
		abortJSON(c, http.StatusBadRequest, "Cannot follow yourself")
		return
	}

	if err := s.store.CreateFollow(c.Request.Context(), id.UserID, target.ID); err != nil {
		logg.Error("http/follow", "Failed to create follow relationship", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	logg.Info("http/follow", "Follow relationship created for user_id="+id.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Following " + target.Username})
}

func (s *Server) unfollowHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	target, ok := s.lookupUser(c, "http/unfollow", c.Param("username"))
	if !ok {
		return
	}

	err := s.store.DeleteFollow(c.Request.Context(), id.UserID, target.ID)
	if errors.Is(err, store.ErrNotFound) {
		abortJSON(c, http.StatusNotFound, "Not following "+target.Username)
		return
	}
	if err != nil {
		logg.Error("http/unfollow", "Failed to delete follow relationship", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Unfollowed " + target.Username})
}

func (s *Server) lookupUser(c *gin.Context, module, username string) (models.User, bool) {
	user, err := s.store.GetUserByUsername(c.Request.Context(), username)
	if errors.Is(err, store.ErrNotFound) {
		abortJSON(c, http.StatusNotFound, "User not found")
		return models.User{}, false
	}
	if err != nil {
		logg.Error(module, "Failed to query user", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return models.User{}, false
	}
	return user, true
}

func (s *Server) notificationsHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	list, err := s.store.GetNotifications(c.Request.Context(), id.UserID, s.opts.ListLimit)
	if err != nil {
		logg.Error("http/notifications", "Failed to list notifications", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, list)
}

// --- Tweets ---

func (s *Server) userTweetsHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	tweets, err := s.store.GetUserTweets(c.Request.Context(), id.UserID, s.opts.ListLimit)
	if err != nil {
		logg.Error("http/tweets", "Failed to list user tweets", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	c.JSON(http.StatusOK, tweets)
}

// createTweetHandler stores a tweet and announces it to the broker.
// Expects JSON body: {"tweet": "..."}
func (s *Server) createTweetHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var body struct {
		Tweet *string `json:"tweet"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Tweet == nil {
		abortJSON(c, http.StatusBadRequest, msgInvalidBody)
		return
	}

	tweetID, err := uuid.NewV7()
	if err != nil {
		logg.Error("http/tweets", "Failed to generate tweet id", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}
	tweet := models.Tweet{
		ID:       tweetID.String(),
		AuthorID: id.UserID,
		Text:     *body.Tweet,
		Created:  time.Now().UTC(),
	}
	if err := s.store.AddTweet(c.Request.Context(), tweet); err != nil {
		logg.Error("http/tweets", "Failed to save tweet", err)
		abortJSON(c, http.StatusInternalServerError, msgInternal)
		return
	}

	s.publish(c.Request.Context(), models.TweetEvent{
		Type:           models.TweetCreated,
		TweetID:        tweet.ID,
		AuthorID:       tweet.AuthorID,
		AuthorUsername: id.Username,
		Text:           tweet.Text,
		Created:        tweet.Created,
	})

	logg.Info("http/tweets", "Tweet created successfully by user_id="+id.UserID)
	c.JSON(http.StatusOK, gin.H{"message": "Created a Tweet", "id": tweet.ID})
}

// deleteTweetHandler removes one of the caller's tweets. Missing tweets and tweets by
// other authors get the same response.
func (s *Server) deleteTweetHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	tweetID := c.Param("tweetId")
	if err := s.store.DeleteTweet(c.Request.Context(), id.UserID, tweetID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logg.Error("http/tweets", "Failed to delete tweet", err)
		}
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}

	s.publish(c.Request.Context(), models.TweetEvent{
		Type:           models.TweetDeleted,
		TweetID:        tweetID,
		AuthorID:       id.UserID,
		AuthorUsername: id.Username,
		Created:        time.Now().UTC(),
	})
	c.JSON(http.StatusOK, gin.H{"message": "Tweet Removed"})
}

// publish is best effort: the write already succeeded.
func (s *Server) publish(ctx context.Context, ev models.TweetEvent) {
	if err := appkafka.PublishTweetEvent(ctx, s.events, ev); err != nil {
		logg.Error("http/tweets", "Failed to publish "+string(ev.Type)+" event", err)
	}
}

// The handlers below run behind TweetVisibility.

func (s *Server) tweetHandler(c *gin.Context) {
	detail, err := s.store.GetTweetDetail(c.Request.Context(), c.Param("tweetId"))
	if err != nil {
		logg.Error("http/tweets", "Failed to load tweet", err)
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) likesHandler(c *gin.Context) {
	likers, err := s.store.GetTweetLikers(c.Request.Context(), c.Param("tweetId"), s.opts.ListLimit)
	if err != nil {
		logg.Error("http/likes", "Failed to list likes", err)
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"likes": likers})
}

func (s *Server) repliesHandler(c *gin.Context) {
	replies, err := s.store.GetTweetReplies(c.Request.Context(), c.Param("tweetId"), s.opts.ListLimit)
	if err != nil {
		logg.Error("http/replies", "Failed to list replies", err)
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

func (s *Server) likeHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	if err := s.store.AddLike(c.Request.Context(), c.Param("tweetId"), id.UserID); err != nil {
		logg.Error("http/likes", "Failed to like tweet", err)
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Liked the Tweet"})
}

// replyHandler expects JSON body: {"reply": "..."}
func (s *Server) replyHandler(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var body struct {
		Reply *string `json:"reply"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Reply == nil {
		abortJSON(c, http.StatusBadRequest, msgInvalidBody)
		return
	}
	if err := s.store.AddReply(c.Request.Context(), c.Param("tweetId"), id.UserID, *body.Reply); err != nil {
		logg.Error("http/replies", "Failed to reply to tweet", err)
		abortJSON(c, http.StatusUnauthorized, msgInvalidRequest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Replied to the Tweet"})
}
