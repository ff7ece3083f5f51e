package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/pageinsights/internal/insights"
	"github.com/hitoshi/pageinsights/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

var panelTemplate = template.Must(template.ParseFS(templateFS, "templates/panel.html"))

// PanelConfig はHTMLパネルの設定。
type PanelConfig struct {
	// AutoLogin が有効な場合、未ログインの訪問者をログインダイアログへ自動で送る。
	AutoLogin bool
	LoginPath string
}

// PanelHandler はサーバーレンダリングのインサイトパネルを提供する。
// 変更系はすべて POST → 303 → GET / で処理する。
type PanelHandler struct {
	controllers ControllerSource
	presenter   *Presenter
	config      PanelConfig
}

// NewPanelHandler はPanelHandlerを生成する。
func NewPanelHandler(controllers ControllerSource, presenter *Presenter, config PanelConfig) *PanelHandler {
	if config.LoginPath == "" {
		config.LoginPath = "/auth/facebook/login"
	}
	return &PanelHandler{controllers: controllers, presenter: presenter, config: config}
}

type panelPage struct {
	Panel     insights.Panel
	CSRFToken string
	LoginPath string
}

// Show はパネルを描画する。
// GET /
func (h *PanelHandler) Show(w http.ResponseWriter, r *http.Request) {
	var state insights.State
	if _, err := middleware.SessionIDFromContext(r.Context()); err == nil {
		_, ctrl, err := controllerFromRequest(r, h.controllers)
		if err != nil {
			slog.Warn("failed to restore session controller", slog.String("error", err.Error()))
		} else {
			state = ctrl.State()
		}
	}

	if !state.Authenticated() && h.config.AutoLogin {
		http.Redirect(w, r, h.config.LoginPath, http.StatusFound)
		return
	}

	var buf bytes.Buffer
	err := panelTemplate.Execute(&buf, panelPage{
		Panel:     h.presenter.Panel(state),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		LoginPath: h.config.LoginPath,
	})
	if err != nil {
		slog.Error("failed to render panel", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	buf.WriteTo(w)
}

// Select は対象ページを選択する。
// POST /panel/select
func (h *PanelHandler) Select(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctrl *insights.Controller) {
		ctrl.SelectResource(r.PostFormValue("page_id"))
	})
}

// Range は期間の端点を更新する。フォームに含まれるフィールドだけを反映する。
// POST /panel/range
func (h *PanelHandler) Range(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctrl *insights.Controller) {
		for _, field := range []insights.DateField{insights.FieldSince, insights.FieldUntil} {
			if !r.PostForm.Has(string(field)) {
				continue
			}
			if err := ctrl.UpdateDateRange(field, r.PostForm.Get(string(field))); err != nil {
				slog.Warn("failed to update date range", slog.String("error", err.Error()))
			}
		}
	})
}

// Submit はインサイトを取得する。
// POST /panel/insights
func (h *PanelHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctrl *insights.Controller) {
		ctrl.SubmitMetrics(r.Context())
	})
}

// Refresh は管理ページ一覧を再取得する。
// POST /panel/pages/refresh
func (h *PanelHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctrl *insights.Controller) {
		ctrl.ListResources(r.Context())
	})
}

// apply は操作を適用して状態を保存し、パネルへリダイレクトする。
// 失敗はログのみとし、画面は常に現在の状態を表示する。
func (h *PanelHandler) apply(w http.ResponseWriter, r *http.Request, op func(ctrl *insights.Controller)) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("invalid panel form", slog.String("error", err.Error()))
	}

	sessionID, ctrl, err := controllerFromRequest(r, h.controllers)
	if err != nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	op(ctrl)

	if err := h.controllers.Persist(r.Context(), sessionID, ctrl); err != nil {
		slog.Error("failed to persist session state",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
