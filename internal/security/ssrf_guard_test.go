package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var _ SSRFGuardService = NewSSRFGuard()

func TestNewSafeClient_Configuration(t *testing.T) {
	client := NewSSRFGuard().NewSafeClient(5 * time.Second)

	if client.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", client.Timeout)
	}
	if client.Transport == nil || client.Transport == http.DefaultTransport {
		t.Error("safeurlのTransportが設定されていません")
	}
}

// httptestのTLSサーバーは127.0.0.1で待ち受けるため、接続は拒否される。
func TestNewSafeClient_RefusesLoopback(t *testing.T) {
	called := false
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	client := NewSSRFGuard().NewSafeClient(2 * time.Second)
	if _, err := client.Get(ts.URL); err == nil {
		t.Fatal("ループバックへのリクエストが成功しました")
	}
	if called {
		t.Error("サーバーにリクエストが到達しました")
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"Graph API", "https://graph.facebook.com/v19.0/me", false},
		{"プロフィール画像", "https://platform-lookaside.fbsbx.com/platform/profilepic/?asid=1", false},
		{"CDN", "https://scontent.xx.fbcdn.net/v/t1.0-1/p50x50/1.jpg", false},
		{"明示的な443", "https://scontent.xx.fbcdn.net:443/1.jpg", false},
		{"空文字列", "", true},
		{"スキームなし", "not-a-url", true},
		{"http", "http://graph.facebook.com/me", true},
		{"javascript", "javascript:alert(1)", true},
		{"data", "data:image/png;base64,AAAA", true},
		{"file", "file:///etc/passwd", true},
		{"認証情報付き", "https://user:pw@scontent.xx.fbcdn.net/1.jpg", true},
		{"別ポート", "https://scontent.xx.fbcdn.net:8443/1.jpg", true},
		{"10/8", "https://10.0.0.1/a.jpg", true},
		{"172.16/12", "https://172.16.0.1/a.jpg", true},
		{"192.168/16", "https://192.168.1.100/a.jpg", true},
		{"ループバック", "https://127.0.0.1/a.jpg", true},
		{"localhost", "https://LOCALHOST/a.jpg", true},
		{"localhostサブドメイン", "https://cdn.localhost/a.jpg", true},
		{"メタデータIP", "https://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "https://[::1]/a.jpg", true},
		{"IPv6ユニークローカル", "https://[fd00::1]/a.jpg", true},
		{"ゼロアドレス", "https://0.0.0.0/a.jpg", true},
	}

	guard := NewSSRFGuard()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
