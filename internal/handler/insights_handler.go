package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pageinsights/internal/insights"
	"github.com/hitoshi/pageinsights/internal/middleware"
	"github.com/hitoshi/pageinsights/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限。
const maxRequestBodySize = 1 << 20

// ControllerSource はセッションIDに対応するコントローラーの取得と状態の保存を行う。
// insights.Registryが実装する。
type ControllerSource interface {
	Get(ctx context.Context, sessionID string) (*insights.Controller, error)
	Persist(ctx context.Context, sessionID string, ctrl *insights.Controller) error
}

// InsightsHandler はセッションコントローラーを操作するJSON APIのハンドラー。
type InsightsHandler struct {
	controllers ControllerSource
	presenter   *Presenter
}

// NewInsightsHandler はInsightsHandlerを生成する。
func NewInsightsHandler(controllers ControllerSource, presenter *Presenter) *InsightsHandler {
	return &InsightsHandler{controllers: controllers, presenter: presenter}
}

type selectionRequest struct {
	PageID string `json:"page_id"`
}

type dateRangeRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// GetState は現在のセッション状態を返す。
// GET /api/state
func (h *InsightsHandler) GetState(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctrl *insights.Controller) error { return nil })
}

// RefreshPages は管理ページ一覧を再取得する。
// POST /api/pages/refresh
func (h *InsightsHandler) RefreshPages(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctrl *insights.Controller) error {
		ctrl.ListResources(r.Context())
		return nil
	})
}

// SelectPage は対象ページを選択する。
// PUT /api/selection
func (h *InsightsHandler) SelectPage(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	if req.PageID == "" {
		middleware.WriteError(w, model.NewInvalidRequestError("page_id"))
		return
	}

	h.run(w, r, func(ctrl *insights.Controller) error {
		if !ctrl.SelectResource(req.PageID) {
			return model.NewPageNotFoundError(req.PageID)
		}
		return nil
	})
}

// UpdateDateRange は期間の片方の端点を更新する。
// PUT /api/date-range
func (h *InsightsHandler) UpdateDateRange(w http.ResponseWriter, r *http.Request) {
	var req dateRangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, err)
		return
	}
	field, err := insights.ParseDateField(req.Field)
	if err != nil {
		middleware.WriteError(w, model.NewInvalidDateFieldError(req.Field))
		return
	}

	h.run(w, r, func(ctrl *insights.Controller) error {
		return ctrl.UpdateDateRange(field, req.Value)
	})
}

// SubmitInsights は選択中のページと期間でインサイトを取得する。
// POST /api/insights
func (h *InsightsHandler) SubmitInsights(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, func(ctrl *insights.Controller) error {
		if !ctrl.SubmitMetrics(r.Context()) {
			return model.NewNoPageSelectedError()
		}
		return nil
	})
}

// run はセッションのコントローラーに操作を適用し、状態を保存して結果の状態を返す。
func (h *InsightsHandler) run(w http.ResponseWriter, r *http.Request, op func(ctrl *insights.Controller) error) {
	sessionID, ctrl, err := controllerFromRequest(r, h.controllers)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	if err := op(ctrl); err != nil {
		middleware.WriteError(w, err)
		return
	}

	if r.Method != http.MethodGet {
		if err := h.controllers.Persist(r.Context(), sessionID, ctrl); err != nil {
			middleware.WriteError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.presenter.State(ctrl.State()))
}

// controllerFromRequest はリクエストコンテキストのセッションIDからコントローラーを取得する。
// セッションが失効している場合はUNAUTHORIZEDを返す。
func controllerFromRequest(r *http.Request, source ControllerSource) (string, *insights.Controller, error) {
	sessionID, err := middleware.SessionIDFromContext(r.Context())
	if err != nil {
		return "", nil, model.NewUnauthorizedError()
	}
	ctrl, err := source.Get(r.Context(), sessionID)
	if errors.Is(err, insights.ErrSessionNotFound) {
		return "", nil, model.NewUnauthorizedError()
	}
	if err != nil {
		return "", nil, err
	}
	return sessionID, ctrl, nil
}

// decodeJSON はリクエストボディをJSONとして読み込む。未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		slog.Debug("invalid request body", slog.String("error", err.Error()))
		return model.NewInvalidRequestError(fmt.Sprintf("body: %v", err))
	}
	return nil
}
