package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pageinsights/internal/middleware"
	"github.com/hitoshi/pageinsights/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Withdraw はユーザーの退会処理を実行する。
	// sessionsとそのコントローラーを破棄してからuserを削除する（identitiesはCASCADE）。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies cookieJar
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface, config AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: jarFor(config),
	}
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewUnauthorizedError())
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		middleware.WriteError(w, err)
		return
	}

	slog.Info("user withdrew", slog.String("user_id", userID))

	h.cookies.expire(w, middleware.SessionCookieName)
	w.WriteHeader(http.StatusNoContent)
}
