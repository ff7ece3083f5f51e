package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/pageinsights/internal/model"
)

// ErrSessionNotFound はセッションが存在しないか期限切れの場合のエラー。
var ErrSessionNotFound = errors.New("session not found or expired")

// SessionStore はセッション状態の永続化インターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	UpdateData(ctx context.Context, id string, data []byte, version uint64) error
}

// RegistryConfig はRegistryの設定。
type RegistryConfig struct {
	Controller      ControllerConfig
	IdleTTL         time.Duration // この期間アクセスのないコントローラーをメモリから外す
	CleanupInterval time.Duration
}

type registryEntry struct {
	ctrl       *Controller
	lastAccess time.Time
}

// Registry はセッションIDごとのControllerを管理する。
// メモリ上にないセッションは永続化された状態から復元する。
type Registry struct {
	provider Provider
	store    SessionStore
	config   RegistryConfig
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	entries map[string]*registryEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRegistry はRegistryを生成し、バックグラウンドで不要なエントリの掃除を開始する。
func NewRegistry(provider Provider, store SessionStore, config RegistryConfig, logger *slog.Logger, recorder Recorder) *Registry {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 30 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	config.Controller = config.Controller.withDefaults()
	r := &Registry{
		provider: provider,
		store:    store,
		config:   config,
		logger:   logger,
		recorder: recorder,
		entries:  make(map[string]*registryEntry),
		stopCh:   make(chan struct{}),
	}
	go r.cleanupLoop()
	return r
}

// Stop は掃除用のゴルーチンを停止する。
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// New はまだセッションに紐付いていない新しいControllerを生成する。
func (r *Registry) New() *Controller {
	return NewController(r.provider, r.config.Controller, r.logger, r.recorder)
}

// Bind はControllerをセッションIDに紐付ける。
func (r *Registry) Bind(sessionID string, ctrl *Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sessionID] = &registryEntry{ctrl: ctrl, lastAccess: time.Now()}
}

// Get はセッションIDに対応するControllerを返す。
// メモリにない場合はストアから状態を読み込んで復元する。
func (r *Registry) Get(ctx context.Context, sessionID string) (*Controller, error) {
	r.mu.Lock()
	if e, ok := r.entries[sessionID]; ok {
		e.lastAccess = time.Now()
		r.mu.Unlock()
		return e.ctrl, nil
	}
	r.mu.Unlock()

	session, err := r.store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	state, err := DecodeState(session.Data, r.config.Controller.DefaultDate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// 並行して復元された場合は先に登録されたものを使う
	if e, ok := r.entries[sessionID]; ok {
		e.lastAccess = time.Now()
		return e.ctrl, nil
	}
	ctrl := RestoreController(r.provider, r.config.Controller, state, r.logger, r.recorder)
	r.entries[sessionID] = &registryEntry{ctrl: ctrl, lastAccess: time.Now()}
	return ctrl, nil
}

// Persist はControllerの現在の状態をストアに保存する。
func (r *Registry) Persist(ctx context.Context, sessionID string, ctrl *Controller) error {
	state := ctrl.State()
	data, err := EncodeState(state)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := r.store.UpdateData(ctx, sessionID, data, state.Version); err != nil {
		return fmt.Errorf("failed to persist session state: %w", err)
	}

	r.mu.Lock()
	if e, ok := r.entries[sessionID]; ok && e.ctrl == ctrl {
		e.lastAccess = time.Now()
	}
	r.mu.Unlock()
	return nil
}

// Remove はセッションIDに紐付くControllerを破棄する。
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, sessionID)
}

// Len はメモリ上のController数を返す。テスト用。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(time.Now())
		case <-r.stopCh:
			return
		}
	}
}

// evictIdle はIdleTTLを超えてアクセスのないエントリを外す。状態はストアに残っている。
// 応答待ちのコントローラーは外さない。外すと次のGetで古い状態から二重に復元され、
// 同じVersionの書き込みが競合するため。
func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		if e.ctrl.Busy() {
			e.lastAccess = now
			continue
		}
		if now.Sub(e.lastAccess) > r.config.IdleTTL {
			delete(r.entries, id)
			evicted++
		}
	}
	if evicted > 0 {
		r.logger.Info("evicted idle session controllers", slog.Int("count", evicted))
	}
	return evicted
}

// EncodeState は状態をJSONに変換する。
func EncodeState(s State) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeState はJSONから状態を復元する。空のデータは初期状態として扱う。
func DecodeState(data []byte, defaultDate string) (State, error) {
	if defaultDate == "" {
		defaultDate = DefaultDate
	}
	s := NewState(defaultDate)
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, err
	}
	return s, nil
}
