package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/hitoshi/pageinsights/internal/insights"
	"github.com/hitoshi/pageinsights/internal/middleware"
)

// --- Graph API プロバイダーのモック ---

// mockProvider はinsights.Providerのテストダブル。pathごとのJSON応答を返す。
type mockProvider struct {
	mu        sync.Mutex
	profile   *insights.Profile
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		profile: &insights.Profile{
			ID:          "fb-user-1",
			Name:        "Taro",
			AvatarURL:   "https://platform-lookaside.fbsbx.com/avatar.jpg",
			AccessToken: "user-token",
		},
		responses: map[string]string{
			insights.AccountsPath:       `{"data":[{"id":"p1","name":"Page One","access_token":"tok1"},{"id":"p2","name":"Page Two","access_token":"tok2"}]}`,
			insights.InsightsPath("p1"): `{"data":[{"name":"page_posts_impressions","values":[{"value":42,"end_time":"2024-08-09T07:00:00+0000"}]}]}`,
		},
		errs: make(map[string]error),
	}
}

func (m *mockProvider) Login(ctx context.Context, req insights.LoginRequest) (*insights.Profile, error) {
	if m.profile == nil {
		return nil, errors.New("login denied")
	}
	p := *m.profile
	return &p, nil
}

func (m *mockProvider) Call(ctx context.Context, path string, params url.Values, out any) error {
	m.mu.Lock()
	m.calls = append(m.calls, path)
	body, ok := m.responses[path]
	err := m.errs[path]
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return errors.New("unexpected path: " + path)
	}
	return json.Unmarshal([]byte(body), out)
}

func (m *mockProvider) callCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == path {
			n++
		}
	}
	return n
}

// --- ControllerSource のモック ---

type mockControllers struct {
	mu         sync.Mutex
	ctrls      map[string]*insights.Controller
	getErr     error
	persistErr error
	persisted  []string
}

func newMockControllers() *mockControllers {
	return &mockControllers{ctrls: make(map[string]*insights.Controller)}
}

func (m *mockControllers) Get(ctx context.Context, sessionID string) (*insights.Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	ctrl, ok := m.ctrls[sessionID]
	if !ok {
		return nil, insights.ErrSessionNotFound
	}
	return ctrl, nil
}

func (m *mockControllers) Persist(ctx context.Context, sessionID string, ctrl *insights.Controller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.persisted = append(m.persisted, sessionID)
	return m.persistErr
}

// loggedInController はログイン済み（ページ一覧取得済み）のコントローラーを返す。
func loggedInController(t *testing.T, p *mockProvider) *insights.Controller {
	t.Helper()
	ctrl := insights.NewController(p, insights.ControllerConfig{}, nil, nil)
	if err := ctrl.Login(context.Background(), "code"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return ctrl
}

// withSession はセッションミドルウェアが注入する値をリクエストに設定する。
func withSession(r *http.Request, userID, sessionID string) *http.Request {
	return r.WithContext(middleware.ContextWithSession(r.Context(), userID, sessionID))
}

func decodeErrorBody(t *testing.T, body io.Reader) middleware.ErrorResponseBody {
	t.Helper()
	var b middleware.ErrorResponseBody
	if err := json.NewDecoder(body).Decode(&b); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return b
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
