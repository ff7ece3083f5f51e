package insights

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
)

// Recorder はコントローラーが記録するメトリクスのインターフェース。
type Recorder interface {
	RecordLogin(success bool)
	RecordEmptyInsights()
}

type nopRecorder struct{}

func (nopRecorder) RecordLogin(bool)     {}
func (nopRecorder) RecordEmptyInsights() {}

// ControllerConfig はコントローラーの設定。
type ControllerConfig struct {
	AppID       string
	DefaultDate string
}

// Controller は1つのログインセッションの状態を保持し、リモート呼び出しを調停する。
// 状態遷移はすべてmuの下で直列化される。リモート呼び出し自体はロックの外で行うため、
// 同時に発行された要求の応答は到着順に適用される。
type Controller struct {
	provider Provider
	logger   *slog.Logger
	recorder Recorder
	config   ControllerConfig

	mu    sync.Mutex
	state State

	// inflight は応答待ちのリモート呼び出し数。
	inflight atomic.Int32
}

// withDefaults は未設定の項目を既定値で埋めた設定を返す。
func (c ControllerConfig) withDefaults() ControllerConfig {
	if c.AppID == "" {
		c.AppID = DefaultAppID
	}
	if c.DefaultDate == "" {
		c.DefaultDate = DefaultDate
	}
	return c
}

// NewController は初期状態のControllerを生成する。
func NewController(provider Provider, config ControllerConfig, logger *slog.Logger, recorder Recorder) *Controller {
	config = config.withDefaults()
	return RestoreController(provider, config, NewState(config.DefaultDate), logger, recorder)
}

// RestoreController は永続化済みの状態からControllerを復元する。
func RestoreController(provider Provider, config ControllerConfig, state State, logger *slog.Logger, recorder Recorder) *Controller {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Controller{
		provider: provider,
		logger:   logger,
		recorder: recorder,
		config:   config,
		state:    state,
	}
}

// State は現在の状態のスナップショットを返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy はリモート呼び出しの応答待ちがあればtrueを返す。
func (c *Controller) Busy() bool {
	return c.inflight.Load() > 0
}

func (c *Controller) call(ctx context.Context, path string, params url.Values, out any) error {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)
	return c.provider.Call(ctx, path, params, out)
}

// apply はイベントを適用し、適用後の状態と変化の有無を返す。
func (c *Controller) apply(e Event) (State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, changed := Reduce(c.state, e)
	c.state = next
	return next, changed
}

// Login はプロバイダーにログインを委譲する。
// 成功すると認証済み状態に遷移し、続けて管理ページ一覧を1回取得する。
// 失敗時は状態を変えず、診断ログを出力してエラーを返す。
func (c *Controller) Login(ctx context.Context, code string) error {
	c.inflight.Add(1)
	profile, err := c.provider.Login(ctx, LoginRequest{
		AppID:  c.config.AppID,
		Scope:  Scope,
		Fields: ProfileFields,
		Code:   code,
	})
	c.inflight.Add(-1)
	if err == nil && profile == nil {
		err = fmt.Errorf("provider returned no profile")
	}
	if err != nil {
		c.apply(LoginFailed{Err: err})
		c.recorder.RecordLogin(false)
		c.logger.Warn("login failed", slog.String("error", err.Error()))
		return fmt.Errorf("login failed: %w", err)
	}

	c.apply(LoginSucceeded{Profile: *profile})
	c.recorder.RecordLogin(true)
	c.logger.Info("login succeeded",
		slog.String("profile_id", profile.ID),
		slog.String("name", profile.Name),
	)

	c.ListResources(ctx)
	return nil
}

// ListResources はログインユーザーの管理ページ一覧を取得し、一覧を置き換える。
// エラー応答の場合は状態を変えず、診断ログのみ出力する。
func (c *Controller) ListResources(ctx context.Context) {
	current := c.State()
	if current.Profile == nil {
		c.logger.Warn("cannot list pages before login")
		return
	}

	var resp accountsResponse
	err := c.call(ctx, AccountsPath, url.Values{
		"access_token": {current.Profile.AccessToken},
	}, &resp)
	if err != nil {
		c.apply(ResourcesFailed{Err: err})
		c.logger.Error("Error fetching pages", slog.String("error", err.Error()))
		return
	}

	c.apply(ResourcesLoaded{Resources: resp.Data})
	c.logger.Info("pages fetched", slog.Int("count", len(resp.Data)))
}

// SelectResource は一覧中のページを選択し、そのページのトークンを同時に設定する。
// 一覧にないIDの場合は何もせずfalseを返す。
func (c *Controller) SelectResource(id string) bool {
	_, changed := c.apply(ResourceSelected{ID: id})
	if !changed {
		c.logger.Warn("selected page not found", slog.String("page_id", id))
		return false
	}
	return true
}

// UpdateDateRange は期間の片方の端点を置き換える。値の形式や前後関係は検証しない。
func (c *Controller) UpdateDateRange(field DateField, value string) error {
	if _, err := ParseDateField(string(field)); err != nil {
		return fmt.Errorf("%w: %q", err, field)
	}
	c.apply(DateRangeChanged{Field: field, Value: value})
	return nil
}

// SubmitMetrics は選択中のページと期間でインサイトを取得する。
// ページIDとトークンが揃っていない場合は何もせずfalseを返す。
// 取得に成功すると結果を置き換える（空の結果も有効な結果として扱う）。
// エラー応答の場合は状態を変えない。
func (c *Controller) SubmitMetrics(ctx context.Context) bool {
	c.mu.Lock()
	current := c.state
	if !current.CanSubmit() {
		c.mu.Unlock()
		c.logger.Warn("No page selected or access token missing.")
		return false
	}
	seq := current.MetricsSeq + 1
	c.state, _ = Reduce(current, MetricsRequested{Seq: seq})
	c.mu.Unlock()

	params := url.Values{
		"access_token": {current.SelectedToken},
		"metric":       {MetricNames},
		"since":        {current.Range.Since},
		"until":        {current.Range.Until},
		"period":       {PeriodTotalOverRange},
	}

	var resp insightsResponse
	if err := c.call(ctx, InsightsPath(current.SelectedID), params, &resp); err != nil {
		c.apply(MetricsFailed{Seq: seq, Err: err})
		c.logger.Error("Error fetching insights",
			slog.String("page_id", current.SelectedID),
			slog.String("error", err.Error()),
		)
		return true
	}

	if len(resp.Data) == 0 {
		c.recorder.RecordEmptyInsights()
		c.logger.Warn("No insights data available for the selected page and date range.",
			slog.String("page_id", current.SelectedID),
			slog.String("since", current.Range.Since),
			slog.String("until", current.Range.Until),
		)
	}

	if _, changed := c.apply(MetricsLoaded{Seq: seq, Metrics: resp.Data}); !changed {
		c.logger.Info("discarded stale insights response",
			slog.String("page_id", current.SelectedID),
			slog.Uint64("seq", seq),
		)
	}
	return true
}
