package reaction

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mocktalk/realtime/internal/middleware"
	"github.com/mocktalk/realtime/internal/modules/realtime/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	boardID int64
	data    gateway.ReactionChangedPayload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) PublishReactionChanged(boardID int64, data interface{}) gateway.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{boardID: boardID, data: data.(gateway.ReactionChangedPayload)})
	return gateway.Envelope{}
}

func fakeAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID == 0 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set(middleware.ContextKeyUserID, userID)
		c.Next()
	}
}

func setupRouter(t *testing.T, userID int64) (*gin.Engine, *recordingPublisher) {
	t.Helper()
	svc, db := newService(t)
	pub := &recordingPublisher{}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	optional := func(c *gin.Context) {
		if userID > 0 {
			c.Set(middleware.ContextKeyUserID, userID)
		}
		c.Next()
	}
	NewHandler(svc, NewLocator(db), pub, nil).RegisterRoutes(r.Group("/api/v2"), fakeAuth(userID), optional)
	return r, pub
}

func doJSON(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestToggleEndpointPublishesToBoard(t *testing.T) {
	r, pub := setupRouter(t, 3)

	w := doJSON(r, http.MethodPost, "/api/v2/comments/700/reactions/toggle", `{"reactionType":1}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var s Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, Summary{CommentID: 700, LikeCount: 1, MyReaction: 1}, s)

	require.Len(t, pub.events, 1)
	assert.EqualValues(t, 7, pub.events[0].boardID)
	assert.Equal(t, gateway.ReactionChangedPayload{CommentID: 700, ArticleID: 70, LikeCount: 1}, pub.events[0].data)
}

func TestToggleEndpointRejectsBadInput(t *testing.T) {
	r, pub := setupRouter(t, 3)

	w := doJSON(r, http.MethodPost, "/api/v2/comments/700/reactions/toggle", `{"reactionType":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v2/comments/700/reactions/toggle", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v2/comments/abc/reactions/toggle", `{"reactionType":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v2/comments/404/reactions/toggle", `{"reactionType":1}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Empty(t, pub.events)
}

func TestToggleEndpointRequiresAuth(t *testing.T) {
	r, _ := setupRouter(t, 0)
	w := doJSON(r, http.MethodPost, "/api/v2/comments/700/reactions/toggle", `{"reactionType":1}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetEndpointClearsReaction(t *testing.T) {
	r, pub := setupRouter(t, 3)

	w := doJSON(r, http.MethodPut, "/api/v2/comments/700/reactions", `{"reactionType":-1}`)
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(r, http.MethodPut, "/api/v2/comments/700/reactions", `{"reactionType":0}`)
	require.Equal(t, http.StatusOK, w.Code)

	var s Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	assert.Equal(t, Summary{CommentID: 700}, s)
	require.Len(t, pub.events, 2)
	assert.EqualValues(t, 1, pub.events[0].data.DislikeCount)
	assert.EqualValues(t, 0, pub.events[1].data.DislikeCount)
}

func TestGetEndpointAnonymous(t *testing.T) {
	r, _ := setupRouter(t, 0)

	w := doJSON(r, http.MethodGet, "/api/v2/comments/700/reactions", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"commentId":700,"likeCount":0,"dislikeCount":0,"myReaction":0}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v2/comments/404/reactions", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchEndpoint(t *testing.T) {
	r, _ := setupRouter(t, 3)
	doJSON(r, http.MethodPost, "/api/v2/comments/700/reactions/toggle", `{"reactionType":1}`)

	w := doJSON(r, http.MethodGet, "/api/v2/reactions/summaries?commentIds=700,701", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[
		{"commentId":700,"likeCount":1,"dislikeCount":0,"myReaction":1},
		{"commentId":701,"likeCount":0,"dislikeCount":0,"myReaction":0}
	]}`, w.Body.String())

	w = doJSON(r, http.MethodGet, "/api/v2/reactions/summaries?commentIds=1,x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
