// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, insights, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeUserNotFound     = "USER_NOT_FOUND"
	ErrCodePageNotFound     = "PAGE_NOT_FOUND"
	ErrCodeInvalidDateField = "INVALID_DATE_FIELD"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNoPageSelected   = "NO_PAGE_SELECTED"
	ErrCodeCSRFInvalid      = "CSRF_TOKEN_INVALID"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Facebookでログインしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewPageNotFoundError は選択したページが一覧に存在しない場合のエラーを生成する。
func NewPageNotFoundError(pageID string) *APIError {
	return &APIError{
		Code:     ErrCodePageNotFound,
		Message:  fmt.Sprintf("指定されたページが管理ページ一覧にありません: %s", pageID),
		Category: "insights",
		Action:   "ページ一覧を再取得してから選択してください。",
	}
}

// NewInvalidDateFieldError は期間フィールド名が不正な場合のエラーを生成する。
func NewInvalidDateFieldError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDateField,
		Message:  fmt.Sprintf("無効な期間フィールドです: %s", field),
		Category: "validation",
		Action:   "since または until を指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewNoPageSelectedError はページ未選択のままインサイトを要求した場合のエラーを生成する。
func NewNoPageSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPageSelected,
		Message:  "ページが選択されていないか、アクセストークンがありません。",
		Category: "insights",
		Action:   "ページを選択してから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}
