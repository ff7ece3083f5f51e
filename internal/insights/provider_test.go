package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"sync"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// apiCall はfakeProviderが受け取った呼び出しの記録。
type apiCall struct {
	path   string
	params url.Values
}

// fakeProvider はProviderのテストダブル。
// pathごとに応答（JSON文字列またはエラー）を返し、呼び出しを記録する。
type fakeProvider struct {
	mu sync.Mutex

	loginProfile *Profile
	loginErr     error
	loginReqs    []LoginRequest

	responses map[string]string
	errs      map[string]error
	// hooks はCall内で応答前に実行される。到着順の制御に使う。
	hooks map[string]func(params url.Values)

	calls []apiCall
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		responses: make(map[string]string),
		errs:      make(map[string]error),
		hooks:     make(map[string]func(url.Values)),
	}
}

func (f *fakeProvider) Login(ctx context.Context, req LoginRequest) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginReqs = append(f.loginReqs, req)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if f.loginProfile == nil {
		return nil, errors.New("no profile configured")
	}
	p := *f.loginProfile
	return &p, nil
}

func (f *fakeProvider) Call(ctx context.Context, path string, params url.Values, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{path: path, params: params})
	hook := f.hooks[path]
	f.mu.Unlock()

	if hook != nil {
		hook(params)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[path]; err != nil {
		return err
	}
	body, ok := f.responses[path]
	if !ok {
		return errors.New("unexpected path: " + path)
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeProvider) callsTo(path string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.path == path {
			out = append(out, c)
		}
	}
	return out
}

type countingRecorder struct {
	mu            sync.Mutex
	loginSuccess  int
	loginFailure  int
	emptyInsights int
}

func (r *countingRecorder) RecordLogin(success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.loginSuccess++
	} else {
		r.loginFailure++
	}
}

func (r *countingRecorder) RecordEmptyInsights() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emptyInsights++
}

const twoPagesJSON = `{"data":[
	{"id":"p1","name":"Page One","access_token":"pt1"},
	{"id":"p2","name":"Page Two","access_token":"pt2"}
]}`

func testProfile() *Profile {
	return &Profile{
		ID:          "fb-1",
		Name:        "Taro Yamada",
		AvatarURL:   "https://platform-lookaside.fbsbx.com/avatar.jpg",
		AccessToken: "user-token",
	}
}
