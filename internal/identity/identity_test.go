package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureIdentity(t *testing.T, req *http.Request) (userID, sessionID string, resp *http.Response) {
	t.Helper()
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		userID = UserIDFromContext(r.Context())
		sessionID = SessionIDFromContext(r.Context())
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return userID, sessionID, w.Result()
}

func TestMiddleware_IssuesCookie(t *testing.T) {
	userID, sessionID, resp := captureIdentity(t, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))

	assert.True(t, isValidAnonID(userID), userID)
	assert.Equal(t, DefaultSessionIDValue, sessionID)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, userID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestMiddleware_ReusesValidCookie(t *testing.T) {
	id, err := generateAnonID()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ws/chat?session_id=tab-2", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	userID, sessionID, _ := captureIdentity(t, req)

	assert.Equal(t, id, userID)
	assert.Equal(t, "tab-2", sessionID)
}

func TestMiddleware_RejectsForgedCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: "tg:12345"})
	req.Header.Set(SessionHeaderName, "bad id with spaces")
	userID, sessionID, _ := captureIdentity(t, req)

	assert.NotEqual(t, "tg:12345", userID)
	assert.True(t, isValidAnonID(userID))
	assert.Equal(t, DefaultSessionIDValue, sessionID)
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.7:5123"
	assert.Equal(t, "10.0.0.7", IPFromRequest(req))
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", IPFromRequest(req))
}
