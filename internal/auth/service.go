// Package auth はFacebookログインのコールバック処理とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/pageinsights/internal/insights"
	"github.com/hitoshi/pageinsights/internal/model"
	"github.com/hitoshi/pageinsights/internal/repository"
)

// ProviderFacebook はidentitiesテーブルに記録するプロバイダー名。
const ProviderFacebook = "facebook"

var (
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrUserNotFound    = errors.New("user not found")
)

// LoginURLBuilder はログインダイアログのURLを生成する。graph.Clientが実装する。
type LoginURLBuilder interface {
	LoginURL(req insights.LoginRequest, state string) string
}

// ControllerRegistry はセッションIDとコントローラーの対応を管理する。
// insights.Registryが実装する。
type ControllerRegistry interface {
	New() *insights.Controller
	Bind(sessionID string, ctrl *insights.Controller)
	Remove(sessionID string)
}

// TextSanitizer は表示名の無害化を行う。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// URLValidator は外部URLの安全性を検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AppID         string
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	loginURL    LoginURLBuilder
	registry    ControllerRegistry
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	sanitizer   TextSanitizer
	validator   URLValidator
	config      ServiceConfig
}

// NewService はServiceを生成する。sanitizerとvalidatorはnilでもよい。
func NewService(
	loginURL LoginURLBuilder,
	registry ControllerRegistry,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	sanitizer TextSanitizer,
	validator URLValidator,
	config ServiceConfig,
) *Service {
	if config.AppID == "" {
		config.AppID = insights.DefaultAppID
	}
	return &Service{
		loginURL:    loginURL,
		registry:    registry,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		sanitizer:   sanitizer,
		validator:   validator,
		config:      config,
	}
}

// GetLoginURL はFacebookログインダイアログのURLを生成する。
// アプリID、権限、stateを含む。
func (s *Service) GetLoginURL(state string) string {
	return s.loginURL.LoginURL(insights.LoginRequest{
		AppID:  s.config.AppID,
		Scope:  insights.Scope,
		Fields: insights.ProfileFields,
	}, state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 新しいコントローラーでログインし（管理ページ一覧の取得まで含む）、
// ローカルのユーザーを作成または更新したうえで、
// コントローラーの状態を保持したセッションを作成してレジストリに紐付ける。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	ctrl := s.registry.New()
	if err := ctrl.Login(ctx, code); err != nil {
		return nil, err
	}
	state := ctrl.State()

	userID, err := s.upsertUser(ctx, state.Profile)
	if err != nil {
		return nil, err
	}

	data, err := insights.EncodeState(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	session, err := s.createSession(ctx, userID, data, state.Version)
	if err != nil {
		return nil, err
	}

	s.registry.Bind(session.ID, ctrl)
	return session, nil
}

// upsertUser はFacebookのユーザーIDに紐付くローカルユーザーのIDを返す。
// 既存ユーザーは表示名とアバターを最新化し、未登録ならusersとidentitiesを同時に作成する。
func (s *Service) upsertUser(ctx context.Context, profile *insights.Profile) (string, error) {
	name := s.sanitizeName(profile.Name)
	avatarURL := s.safeAvatarURL(profile.AvatarURL)

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, ProviderFacebook, profile.ID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		if err := s.userRepo.UpdateProfile(ctx, identity.UserID, name, avatarURL); err != nil {
			return "", fmt.Errorf("failed to update user profile: %w", err)
		}
		slog.Info("existing user logged in", slog.String("user_id", identity.UserID))
		return identity.UserID, nil
	}

	now := time.Now()
	u := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		AvatarURL: avatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ident := &model.Identity{
		ID:             uuid.NewString(),
		UserID:         u.ID,
		Provider:       ProviderFacebook,
		ProviderUserID: profile.ID,
		CreatedAt:      now,
	}
	if err := s.userRepo.CreateWithIdentity(ctx, u, ident); err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created", slog.String("user_id", u.ID))
	return u.ID, nil
}

// Logout はセッションとそのコントローラーを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionNotFound
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.registry.Remove(sessionID)

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが無いか期限切れの場合はErrSessionNotFoundを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	u, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *Service) sanitizeName(name string) string {
	if s.sanitizer == nil {
		return name
	}
	return s.sanitizer.SanitizeText(name)
}

// safeAvatarURL は検証に通らないアバターURLを空にする。
func (s *Service) safeAvatarURL(raw string) string {
	if raw == "" || s.validator == nil {
		return raw
	}
	if err := s.validator.ValidateURL(raw); err != nil {
		slog.Warn("discarded unsafe avatar url", slog.String("error", err.Error()))
		return ""
	}
	return raw
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string, data []byte, version uint64) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		Data:      data,
		Version:   version,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
