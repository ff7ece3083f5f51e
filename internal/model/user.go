// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Name      string
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdP（Facebook）との紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
// Dataにはセッションコントローラーの状態をJSONで保持する。
type Session struct {
	ID        string
	UserID    string
	Data      []byte
	Version   uint64
	ExpiresAt time.Time
	CreatedAt time.Time
}
