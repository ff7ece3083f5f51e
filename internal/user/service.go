// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/pageinsights/internal/model"
	"github.com/hitoshi/pageinsights/internal/repository"
)

// ControllerEvictor はセッションに紐付くコントローラーをメモリから外す。
// insights.Registryが実装する。
type ControllerEvictor interface {
	Remove(sessionID string)
}

// Service は退会処理を提供する。
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	evictor  ControllerEvictor
}

// NewService はServiceを生成する。sessionsとevictorはnilでもよい。
func NewService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	evictor ControllerEvictor,
) *Service {
	return &Service{users: users, sessions: sessions, evictor: evictor}
}

// Withdraw はユーザーを退会させる。
// セッションとコントローラーを先に破棄し、その後userを削除する（identitiesはCASCADE）。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	revoked, err := s.revokeSessions(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.users.DeleteByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 並行した退会で既に削除済み
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("user withdrawn",
		slog.String("user_id", userID),
		slog.Int("revoked_sessions", revoked),
	)
	return nil
}

// revokeSessions はユーザーの全セッションを削除し、対応するコントローラーをメモリから外す。
func (s *Service) revokeSessions(ctx context.Context, userID string) (int, error) {
	if s.sessions == nil {
		return 0, nil
	}

	ids, err := s.sessions.ListIDsByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if err := s.sessions.DeleteByUserID(ctx, userID); err != nil {
		return 0, fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	if s.evictor != nil {
		for _, id := range ids {
			s.evictor.Remove(id)
		}
	}
	return len(ids), nil
}
