package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"asset_lending_tool/app"
	"asset_lending_tool/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	issued  map[string]string
	deleted []string
}

func (f *fakeSessions) Issue(_ context.Context, id, userID string) (*session.AppSession, error) {
	if f.issued == nil {
		f.issued = map[string]string{}
	}
	f.issued[id] = userID
	now := time.Now().Unix()
	return &session.AppSession{UserID: userID, IssuedAt: now, ExpiresAt: now + 3600}, nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func newSessionRouter(t *testing.T, sc *SessionController) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/dev/login", sc.DevLogin)
	r.POST("/api/logout", sc.Logout)
	return r
}

func TestDevLogin_IssuesCookie(t *testing.T) {
	u := employee("alice@ex.com")
	sess := &fakeSessions{}
	r := newSessionRouter(t, NewSessionController(sess, newFakeUsers(u), app.Config{}))

	w := doJSON(r, http.MethodPost, "/dev/login", app.H{"username": "alice@ex.com"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sid, _ := decode(t, w)["sessionId"].(string)
	require.NotEmpty(t, sid)
	assert.Equal(t, u.ID, sess.issued[sid])

	var ck *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == app.AppSessionCookie {
			ck = c
		}
	}
	require.NotNil(t, ck)
	assert.Equal(t, sid, ck.Value)
	assert.True(t, ck.HttpOnly)
	assert.Equal(t, 3600, ck.MaxAge)
}

func TestDevLogin_RefusesDeactivatedUser(t *testing.T) {
	u := employee("gone@ex.com")
	u.Active = false
	sess := &fakeSessions{}
	r := newSessionRouter(t, NewSessionController(sess, newFakeUsers(u), app.Config{}))

	w := doJSON(r, http.MethodPost, "/dev/login", app.H{"username": "gone@ex.com"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, sess.issued)

	w = doJSON(r, http.MethodPost, "/dev/login", app.H{"username": "nobody@ex.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogout_DeletesCookieOrBearerSession(t *testing.T) {
	sess := &fakeSessions{}
	r := newSessionRouter(t, NewSessionController(sess, newFakeUsers(), app.Config{}))

	req := httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.AddCookie(&http.Cookie{Name: app.AppSessionCookie, Value: "from-cookie"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/logout", nil)
	req.Header.Set("Authorization", "Bearer from-header")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, []string{"from-cookie", "from-header"}, sess.deleted)
}
