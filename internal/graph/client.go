// Package graph はFacebook Graph APIのクライアントを提供する。
// OAuth 2.0認可コードフローによるログインと、汎用のAPI呼び出しを含む。
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/hitoshi/pageinsights/internal/insights"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	defaultVersion = "v19.0"
	// maxResponseSize はレスポンスボディの読み取り上限。
	maxResponseSize = 5 << 20
)

// Error はGraph APIが返すエラーペイロード。
type Error struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode,omitempty"`
	FBTraceID    string `json:"fbtrace_id,omitempty"`
	// HTTPStatus はレスポンスのステータスコード。ペイロードには含まれない。
	HTTPStatus int `json:"-"`
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	return fmt.Sprintf("graph api error (type=%s, code=%d, status=%d): %s", e.Type, e.Code, e.HTTPStatus, e.Message)
}

// Recorder はAPI呼び出しのメトリクスを記録するインターフェース。
type Recorder interface {
	RecordAPICall(endpoint, outcome string, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Config はGraph APIクライアントの設定。
type Config struct {
	AppSecret   string
	RedirectURL string
	Version     string

	// テスト用にオーバーライド可能なURL
	BaseURL  string
	AuthURL  string
	TokenURL string
}

// Client はGraph APIのクライアント。insights.Providerを実装する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	recorder   Recorder
	config     Config
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, config Config, logger *slog.Logger, recorder Recorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Version == "" {
		config.Version = defaultVersion
	}
	if config.AuthURL == "" {
		config.AuthURL = facebook.Endpoint.AuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = facebook.Endpoint.TokenURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		recorder:   recorder,
		config:     config,
	}
}

// oauthConfig はログイン要求からoauth2.Configを組み立てる。
// scopeはカンマ区切りのまま1要素として渡し、値を変えずに送信する。
func (c *Client) oauthConfig(req insights.LoginRequest) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     req.AppID,
		ClientSecret: c.config.AppSecret,
		RedirectURL:  c.config.RedirectURL,
		Scopes:       []string{req.Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.config.AuthURL,
			TokenURL:  c.config.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// LoginURL はFacebookログインダイアログのURLを生成する。
func (c *Client) LoginURL(req insights.LoginRequest, state string) string {
	return c.oauthConfig(req).AuthCodeURL(state)
}

// meResponse は/me?fields=name,pictureのレスポンス。
type meResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Picture struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

// Login は認可コードをアクセストークンに交換し、プロフィールを取得する。
func (c *Client) Login(ctx context.Context, req insights.LoginRequest) (*insights.Profile, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("missing authorization code")
	}

	// 1. 認可コードをアクセストークンに交換
	start := time.Now()
	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.oauthConfig(req).Exchange(exchangeCtx, req.Code)
	if err != nil {
		c.record("oauth/access_token", "error", time.Since(start))
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	c.record("oauth/access_token", "success", time.Since(start))

	if token.AccessToken == "" {
		return nil, fmt.Errorf("empty access token in response")
	}

	// 2. アクセストークンでプロフィールを取得
	var me meResponse
	err = c.Call(ctx, "/me", url.Values{
		"fields":       {req.Fields},
		"access_token": {token.AccessToken},
	}, &me)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch profile: %w", err)
	}
	if me.ID == "" {
		return nil, fmt.Errorf("empty id in profile response")
	}

	return &insights.Profile{
		ID:          me.ID,
		Name:        me.Name,
		AvatarURL:   me.Picture.Data.URL,
		AccessToken: token.AccessToken,
	}, nil
}

// Call はGraph APIのGETリクエストを送信し、レスポンスのJSONをoutにデコードする。
// レスポンスがerrorメンバーを含む場合、または2xx以外の場合は*Errorを返す。
func (c *Client) Call(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := endpointLabel(path)
	start := time.Now()

	err := c.do(ctx, path, params, out)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.record(endpoint, outcome, time.Since(start))
	return err
}

func (c *Client) do(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.config.BaseURL + "/" + c.config.Version + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("graph api request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("graph request failed: %w", err)
	}
	defer resp.Body.Close()
	if c.recorder != nil {
		c.recorder.RecordHTTPStatus(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read graph response: %w", err)
	}

	var envelope struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = resp.StatusCode
		c.logger.Warn("graph api returned error payload",
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("type", envelope.Error.Type),
			slog.Int("code", envelope.Error.Code),
		)
		return envelope.Error
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Message:    strings.TrimSpace(string(body)),
			Type:       "HTTPError",
			HTTPStatus: resp.StatusCode,
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse graph response: %w", err)
	}
	return nil
}

func (c *Client) record(endpoint, outcome string, d time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordAPICall(endpoint, outcome, d)
	}
}

// endpointLabel はメトリクス用にパスからIDを除いたラベルを返す。
// "/me/accounts" -> "me/accounts", "/123/insights" -> "insights"
func endpointLabel(path string) string {
	path = strings.Trim(path, "/")
	if path == "me" || strings.HasPrefix(path, "me/") {
		return path
	}
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return "object"
}

// compile-time interface check
var _ insights.Provider = (*Client)(nil)
