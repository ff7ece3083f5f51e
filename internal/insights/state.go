package insights

import (
	"errors"
	"slices"

	"github.com/samber/lo"
)

// Phase はセッションの進行段階を表す。Stateから導出される。
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticated
	PhaseResourcesListed
	PhaseResourceSelected
	PhaseMetricsShown
)

// String はPhaseの名前を返す。
func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseResourcesListed:
		return "resources_listed"
	case PhaseResourceSelected:
		return "resource_selected"
	case PhaseMetricsShown:
		return "metrics_shown"
	default:
		return "unknown"
	}
}

// DateField は期間のどちらの端点かを表す。
type DateField string

const (
	FieldSince DateField = "since"
	FieldUntil DateField = "until"
)

// ErrUnknownDateField は未知の期間フィールドが指定された場合のエラー。
var ErrUnknownDateField = errors.New("unknown date range field")

// ParseDateField は文字列をDateFieldに変換する。
func ParseDateField(s string) (DateField, error) {
	switch DateField(s) {
	case FieldSince, FieldUntil:
		return DateField(s), nil
	default:
		return "", ErrUnknownDateField
	}
}

// State はセッションの表示状態。値として扱い、Reduceでのみ新しい値を生成する。
type State struct {
	Profile       *Profile          `json:"profile,omitempty"`
	Resources     []ManagedResource `json:"resources"`
	SelectedID    string            `json:"selected_id"`
	SelectedToken string            `json:"selected_token"`
	Range         DateRange         `json:"range"`
	Metrics       []MetricResult    `json:"metrics"`
	// MetricsFetched は一度でもインサイト取得に成功したかを表す。
	// 空の結果と未取得を区別する。
	MetricsFetched bool `json:"metrics_fetched"`
	// MetricsSeq は最後に発行したインサイト要求の通番。
	MetricsSeq uint64 `json:"metrics_seq"`
	// Version は状態遷移ごとに単調増加する。永続化時の新旧判定に使う。
	Version uint64 `json:"version"`
}

// NewState は初期状態を返す。期間の両端はdefaultDateで初期化する。
func NewState(defaultDate string) State {
	return State{
		Range: DateRange{Since: defaultDate, Until: defaultDate},
	}
}

// Phase は現在の進行段階を返す。
func (s State) Phase() Phase {
	switch {
	case s.Profile == nil:
		return PhaseAnonymous
	case s.MetricsFetched:
		return PhaseMetricsShown
	case s.SelectedID != "":
		return PhaseResourceSelected
	case len(s.Resources) > 0:
		return PhaseResourcesListed
	default:
		return PhaseAuthenticated
	}
}

// Authenticated はログイン済みかを返す。
func (s State) Authenticated() bool {
	return s.Profile != nil
}

// CanSubmit はインサイト要求を発行できるか（ページIDとトークンが揃っているか）を返す。
func (s State) CanSubmit() bool {
	return s.SelectedID != "" && s.SelectedToken != ""
}

// FindResource は現在の一覧からIDでページを探す。見つからない場合はfalseを返す。
func (s State) FindResource(id string) (ManagedResource, bool) {
	return lo.Find(s.Resources, func(r ManagedResource) bool {
		return r.ID == id
	})
}

// Event は状態遷移を引き起こす出来事。
type Event interface {
	event()
}

// LoginSucceeded はログイン成功。
type LoginSucceeded struct{ Profile Profile }

// LoginFailed はログインの拒否または失敗。状態は変化しない。
type LoginFailed struct{ Err error }

// ResourcesLoaded は管理ページ一覧の取得成功。一覧を丸ごと置き換える。
type ResourcesLoaded struct{ Resources []ManagedResource }

// ResourcesFailed は管理ページ一覧の取得失敗。状態は変化しない。
type ResourcesFailed struct{ Err error }

// ResourceSelected はページ選択。
type ResourceSelected struct{ ID string }

// DateRangeChanged は期間の片方の端点の変更。
type DateRangeChanged struct {
	Field DateField
	Value string
}

// MetricsRequested はインサイト要求の発行。Seqは発行時に割り当てた通番。
type MetricsRequested struct{ Seq uint64 }

// MetricsLoaded はインサイト取得成功。
type MetricsLoaded struct {
	Seq     uint64
	Metrics []MetricResult
}

// MetricsFailed はインサイト取得失敗。状態は変化しない。
type MetricsFailed struct {
	Seq uint64
	Err error
}

func (LoginSucceeded) event()   {}
func (LoginFailed) event()      {}
func (ResourcesLoaded) event()  {}
func (ResourcesFailed) event()  {}
func (ResourceSelected) event() {}
func (DateRangeChanged) event() {}
func (MetricsRequested) event() {}
func (MetricsLoaded) event()    {}
func (MetricsFailed) event()    {}

// Reduce は現在の状態とイベントから次の状態を計算する純粋関数。
// 状態が変化した場合はVersionを進め、changed=trueを返す。
// 失敗イベント、未知のページ選択、古い要求に対する応答は状態を変化させない。
func Reduce(s State, e Event) (next State, changed bool) {
	next = s
	switch ev := e.(type) {
	case LoginSucceeded:
		p := ev.Profile
		next.Profile = &p

	case ResourcesLoaded:
		next.Resources = slices.Clone(ev.Resources)
		if next.Resources == nil {
			next.Resources = []ManagedResource{}
		}

	case ResourceSelected:
		r, ok := s.FindResource(ev.ID)
		if !ok {
			return s, false
		}
		next.SelectedID = r.ID
		next.SelectedToken = r.AccessToken

	case DateRangeChanged:
		switch ev.Field {
		case FieldSince:
			next.Range.Since = ev.Value
		case FieldUntil:
			next.Range.Until = ev.Value
		default:
			return s, false
		}

	case MetricsRequested:
		if ev.Seq <= s.MetricsSeq {
			return s, false
		}
		next.MetricsSeq = ev.Seq

	case MetricsLoaded:
		// 後から発行された要求があれば、古い応答は捨てる
		if ev.Seq < s.MetricsSeq {
			return s, false
		}
		next.Metrics = slices.Clone(ev.Metrics)
		if next.Metrics == nil {
			next.Metrics = []MetricResult{}
		}
		next.MetricsFetched = true

	default:
		// LoginFailed, ResourcesFailed, MetricsFailed
		return s, false
	}

	next.Version = s.Version + 1
	return next, true
}
