// Package insights はFacebookページのインサイト閲覧セッションを管理する。
// ログイン、管理ページ一覧の取得、ページ選択、期間指定、インサイト取得という
// 一連の状態遷移をセッションコントローラーとして提供する。
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
)

// Graph APIとの互換性のため、以下の値は変更してはならない。
const (
	// DefaultAppID はFacebookアプリケーションIDの既定値。
	DefaultAppID = "857117662704495"
	// Scope はログイン時に要求する権限。
	Scope = "pages_show_list,pages_read_engagement"
	// ProfileFields はログイン時に取得するプロフィール項目。
	ProfileFields = "name,picture"
	// MetricNames はインサイト取得時に要求するメトリクス一覧。
	MetricNames = "page_posts_impressions,post_reactions_like_total,page_follows,page_post_engagements"
	// PeriodTotalOverRange は期間全体を合算する集計モード。
	PeriodTotalOverRange = "total_over_range"
	// DefaultDate は期間の初期値（開始・終了とも同日）。
	DefaultDate = "2024-08-08"

	// AccountsPath は管理ページ一覧のエンドポイント。
	AccountsPath = "/me/accounts"
)

// Profile はログインしたユーザーのプロフィールを表す。
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AvatarURL   string `json:"avatar_url"`
	AccessToken string `json:"access_token"`
}

// ManagedResource はユーザーが管理権限を持つページを表す。
// AccessTokenはページ単位のトークン。
type ManagedResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// DateRange はインサイト取得期間。値は入力のまま保持し、検証しない。
type DateRange struct {
	Since string `json:"since"`
	Until string `json:"until"`
}

// MetricValue は1つの集計値。valueは数値またはオブジェクト。
type MetricValue struct {
	Value   json.RawMessage `json:"value"`
	EndTime string          `json:"end_time"`
}

// String は表示用に値を整形する。数値や文字列はそのまま、オブジェクトはコンパクトなJSONで返す。
func (v MetricValue) String() string {
	if len(v.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v.Value); err != nil {
		return string(v.Value)
	}
	return buf.String()
}

// MetricResult はメトリクス名と集計値の列。
type MetricResult struct {
	Name   string        `json:"name"`
	Values []MetricValue `json:"values"`
}

// LoginRequest はログイン時にプロバイダーへ渡すパラメータ。
type LoginRequest struct {
	AppID  string
	Scope  string
	Fields string
	// Code はOAuthコールバックで受け取った認可コード。
	Code string
}

// Provider はID・データ提供元（Facebook）の機能を抽象化したインターフェース。
// コントローラーには構築時に注入し、テストでは差し替える。
type Provider interface {
	// Login は認可コードを用いてログインし、プロフィールを返す。
	// 拒否・失敗時はエラーを返す。
	Login(ctx context.Context, req LoginRequest) (*Profile, error)

	// Call は汎用のAPI呼び出しを行い、レスポンスのJSONをoutにデコードする。
	// レスポンスがerrorを含む場合はエラーを返す。
	Call(ctx context.Context, path string, params url.Values, out any) error
}

// InsightsPath はページのインサイトエンドポイントを返す。
func InsightsPath(resourceID string) string {
	return "/" + resourceID + "/insights"
}

type accountsResponse struct {
	Data []ManagedResource `json:"data"`
}

type insightsResponse struct {
	Data []MetricResult `json:"data"`
}
