// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/samber/lo"
)

// SSRFGuardService は外向き通信の安全性を担保するインターフェース。
// Graph API呼び出し用のHTTPクライアント生成と、Graph APIから受け取ったURL
// （プロフィール画像など）の検証に使用する。
type SSRFGuardService interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

const safePort = 443

// blockedNetworks はプライベート、ループバック、リンクローカル（メタデータIPを含む）の範囲。
var blockedNetworks = lo.Map([]string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
}, func(cidr string, _ int) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
	}
	return network
})

var errEmptyURL = errors.New("empty URL")

type ssrfGuard struct{}

// NewSSRFGuard はSSRFGuardServiceの実装を返す。
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient はhttpsの443番ポートにしか接続しないHTTPクライアントを返す。
// safeurlはDNS解決後のIPをダイアル時に検証するので、DNS再バインディングでも内部アドレスには届かない。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(safePort).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLをDNS解決せずに検証する。
// 表示用URLにはNewSafeClientと同じ条件（https、443番、内部アドレス以外）を課す。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return errEmptyURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	switch {
	case !strings.EqualFold(u.Scheme, "https"):
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	case u.User != nil:
		return errors.New("credentials in URL are not allowed")
	case u.Port() != "" && u.Port() != fmt.Sprint(safePort):
		return fmt.Errorf("disallowed port: %s", u.Port())
	}

	return checkHost(u.Hostname())
}

func checkHost(host string) error {
	if host == "" {
		return errors.New("empty host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil
	}
	if lo.ContainsBy(blockedNetworks, func(n *net.IPNet) bool { return n.Contains(ip) }) {
		return fmt.Errorf("blocked IP address: %s", ip)
	}
	return nil
}
