package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/otpchat/internal/auth"
	"github.com/wuwenbin0122/otpchat/internal/chat"
	"github.com/wuwenbin0122/otpchat/internal/db"
)

type stubMailer struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func (m *stubMailer) SendOTP(ctx context.Context, to, subject, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[to] = code
	return nil
}

func (m *stubMailer) code(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[to]
}

func setupTestRouter(t *testing.T) (*gin.Engine, *stubMailer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := db.NewMemory()
	mailer := &stubMailer{}

	authService, err := auth.NewService(auth.Options{
		ActivationSecret: "activation-secret",
		SessionSecret:    "session-secret",
	}, store, mailer, nil)
	if err != nil {
		t.Fatalf("failed to create auth service: %v", err)
	}

	handler := NewHandler(authService, chat.NewService(store, nil), store, nil)
	router := gin.New()
	handler.RegisterRoutes(router)

	return router, mailer
}

func TestLoginVerifyAndChatScenario(t *testing.T) {
	router, mailer := setupTestRouter(t)

	alice := login(t, router, mailer, "a@x.com")
	bob := login(t, router, mailer, "b@x.com")

	rec := do(t, router, http.MethodGet, "/user/me", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for /user/me, got %d", rec.Code)
	}
	var me map[string]any
	decodeBody(t, rec.Body.Bytes(), &me)
	if me["email"] != "a@x.com" {
		t.Fatalf("expected email a@x.com, got %v", me["email"])
	}

	rec = do(t, router, http.MethodPost, "/chat/new", alice, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	var created map[string]any
	decodeBody(t, rec.Body.Bytes(), &created)
	chatID, _ := created["id"].(string)
	if chatID == "" {
		t.Fatal("expected chat id")
	}
	if _, ok := created["latestMessage"]; ok {
		t.Fatalf("expected no latestMessage on a new chat, got %v", created["latestMessage"])
	}

	rec = do(t, router, http.MethodPost, "/chat/"+chatID, alice, map[string]string{
		"question": "hi",
		"answer":   "hello",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 adding conversation, got %d: %s", rec.Code, rec.Body.String())
	}
	var turn struct {
		Conversation map[string]any `json:"conversation"`
		UpdatedChat  map[string]any `json:"updatedChat"`
	}
	decodeBody(t, rec.Body.Bytes(), &turn)
	if turn.UpdatedChat["latestMessage"] != "hi" {
		t.Fatalf("expected latestMessage hi, got %v", turn.UpdatedChat["latestMessage"])
	}
	if turn.Conversation["answer"] != "hello" {
		t.Fatalf("expected answer hello, got %v", turn.Conversation["answer"])
	}

	rec = do(t, router, http.MethodGet, "/chat/"+chatID, alice, nil)
	var conversations []map[string]any
	decodeBody(t, rec.Body.Bytes(), &conversations)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}

	rec = do(t, router, http.MethodDelete, "/chat/"+chatID, bob, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403 for non-owner delete, got %d", rec.Code)
	}
	assertKind(t, rec, kindUnauthorized)

	rec = do(t, router, http.MethodGet, "/chat/all", alice, nil)
	var chats []map[string]any
	decodeBody(t, rec.Body.Bytes(), &chats)
	if len(chats) != 1 || chats[0]["id"] != chatID {
		t.Fatalf("expected chat to remain listed for owner, got %v", chats)
	}

	rec = do(t, router, http.MethodGet, "/chat/all", bob, nil)
	decodeBody(t, rec.Body.Bytes(), &chats)
	if len(chats) != 0 {
		t.Fatalf("expected no chats for bob, got %d", len(chats))
	}

	rec = do(t, router, http.MethodDelete, "/chat/"+chatID, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for owner delete, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodDelete, "/chat/"+chatID, alice, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rec.Code)
	}
}

func TestAddConversationUnknownChat(t *testing.T) {
	router, mailer := setupTestRouter(t)
	token := login(t, router, mailer, "a@x.com")

	rec := do(t, router, http.MethodPost, "/chat/missing", token, map[string]string{"question": "q", "answer": "a"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	assertKind(t, rec, kindNotFound)

	rec = do(t, router, http.MethodGet, "/chat/missing", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for empty conversation list, got %d", rec.Code)
	}
	if body := bytes.TrimSpace(rec.Body.Bytes()); string(body) != "[]" {
		t.Fatalf("expected empty array, got %s", body)
	}
}

func TestVerifyErrors(t *testing.T) {
	router, mailer := setupTestRouter(t)

	rec := do(t, router, http.MethodPost, "/user/login", "", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var loginResp map[string]string
	decodeBody(t, rec.Body.Bytes(), &loginResp)
	if _, leaked := loginResp["otp"]; leaked {
		t.Fatal("login response must not contain the passcode")
	}

	rec = do(t, router, http.MethodPost, "/user/verify", "", map[string]any{
		"otp":         1000000,
		"verifyToken": loginResp["verifyToken"],
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for wrong code, got %d", rec.Code)
	}
	assertKind(t, rec, kindOTPMismatch)

	rec = do(t, router, http.MethodPost, "/user/verify", "", map[string]any{
		"otp":         mailer.code("a@x.com"),
		"verifyToken": "not-a-token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for invalid token, got %d", rec.Code)
	}
	assertKind(t, rec, kindTokenInvalid)

	rec = do(t, router, http.MethodPost, "/user/verify", "", map[string]any{"verifyToken": loginResp["verifyToken"]})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for missing otp, got %d", rec.Code)
	}
}

func TestLoginDeliveryFailureHidesUpstreamDetail(t *testing.T) {
	router, mailer := setupTestRouter(t)
	mailer.err = errors.New("provider said: api key sk_live_123 revoked")

	rec := do(t, router, http.MethodPost, "/user/login", "", map[string]string{"email": "a@x.com"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	assertKind(t, rec, kindDeliveryFailed)
	if bytes.Contains(rec.Body.Bytes(), []byte("sk_live_123")) {
		t.Fatalf("upstream detail leaked to client: %s", rec.Body.String())
	}
}

func TestChatRoutesRequireSession(t *testing.T) {
	router, _ := setupTestRouter(t)

	for _, tc := range []struct{ method, path, token string }{
		{http.MethodPost, "/chat/new", ""},
		{http.MethodGet, "/chat/all", "garbage"},
		{http.MethodGet, "/user/me", ""},
	} {
		rec := do(t, router, tc.method, tc.path, tc.token, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected status 401, got %d", tc.method, tc.path, rec.Code)
		}
		assertKind(t, rec, kindUnauthenticated)
	}
}

func TestOTPValueAcceptsStringAndNumber(t *testing.T) {
	for raw, want := range map[string]string{`"042"`: "042", `42`: "42"} {
		var v otpValue
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal %s: %v", raw, err)
		}
		if string(v) != want {
			t.Fatalf("unmarshal %s: got %q want %q", raw, v, want)
		}
	}

	var v otpValue
	if err := json.Unmarshal([]byte(`true`), &v); err == nil {
		t.Fatal("expected error for boolean otp")
	}
}

func login(t *testing.T, router *gin.Engine, mailer *stubMailer, email string) string {
	t.Helper()

	rec := do(t, router, http.MethodPost, "/user/login", "", map[string]string{"email": email})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected status 200, got %d", email, rec.Code)
	}
	var loginResp map[string]string
	decodeBody(t, rec.Body.Bytes(), &loginResp)

	rec = do(t, router, http.MethodPost, "/user/verify", "", map[string]string{
		"otp":         mailer.code(email),
		"verifyToken": loginResp["verifyToken"],
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify %s: expected status 200, got %d: %s", email, rec.Code, rec.Body.String())
	}

	var verifyResp struct {
		Token string         `json:"token"`
		User  map[string]any `json:"user"`
	}
	decodeBody(t, rec.Body.Bytes(), &verifyResp)
	if verifyResp.User["email"] != email {
		t.Fatalf("verify %s: unexpected user %v", email, verifyResp.User)
	}
	if verifyResp.Token == "" {
		t.Fatalf("verify %s: expected session token", email)
	}

	return verifyResp.Token
}

func do(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = newJSONRequest(t, method, path, body)
	} else {
		var err error
		req, err = http.NewRequest(method, path, nil)
		if err != nil {
			t.Fatalf("failed to create request: %v", err)
		}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertKind(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var body map[string]any
	decodeBody(t, rec.Body.Bytes(), &body)
	if body["kind"] != want {
		t.Fatalf("expected error kind %s, got %v (%s)", want, body["kind"], rec.Body.String())
	}
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}

	req, err := http.NewRequest(method, path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, data []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}
