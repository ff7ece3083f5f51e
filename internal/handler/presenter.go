package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/hitoshi/pageinsights/internal/insights"
)

// TextSanitizer は表示名の無害化を行う。security.TextSanitizerServiceが実装する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// URLValidator は外部URLの安全性を検証する。security.SSRFGuardServiceが実装する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Presenter はセッション状態を画面およびJSON向けの表示モデルに変換する。
// Graph APIから受け取った名前は無害化し、アバターURLは検証に通ったものだけを出す。
// アクセストークンは出力に含めない。
type Presenter struct {
	sanitizer TextSanitizer
	validator URLValidator
}

// NewPresenter はPresenterを生成する。sanitizerとvalidatorはnilでもよい。
func NewPresenter(sanitizer TextSanitizer, validator URLValidator) *Presenter {
	return &Presenter{sanitizer: sanitizer, validator: validator}
}

// Panel はHTMLパネル用の表示モデルを返す。
func (p *Presenter) Panel(s insights.State) insights.Panel {
	return insights.NewPanel(p.clean(s))
}

type profileResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

type pageResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

type metricValueResponse struct {
	Value   json.RawMessage `json:"value"`
	EndTime string          `json:"end_time"`
	Line    string          `json:"line"`
}

type metricResponse struct {
	Name   string                `json:"name"`
	Title  string                `json:"title"`
	Values []metricValueResponse `json:"values"`
}

// stateResponse は GET /api/state などが返すセッション状態。
type stateResponse struct {
	Phase          string             `json:"phase"`
	Profile        *profileResponse   `json:"profile"`
	Pages          []pageResponse     `json:"pages"`
	SelectedID     string             `json:"selected_id"`
	Range          insights.DateRange `json:"range"`
	CanSubmit      bool               `json:"can_submit"`
	MetricsFetched bool               `json:"metrics_fetched"`
	Metrics        []metricResponse   `json:"metrics"`
	Message        string             `json:"message,omitempty"`
}

// State はJSON API用の表示モデルを返す。
func (p *Presenter) State(s insights.State) stateResponse {
	s = p.clean(s)
	panel := insights.NewPanel(s)

	resp := stateResponse{
		Phase:          panel.Phase,
		Pages:          make([]pageResponse, 0, len(s.Resources)),
		SelectedID:     s.SelectedID,
		Range:          s.Range,
		CanSubmit:      panel.CanSubmit,
		MetricsFetched: s.MetricsFetched,
		Metrics:        make([]metricResponse, 0, len(s.Metrics)),
	}
	if s.Profile != nil {
		resp.Profile = &profileResponse{
			ID:        s.Profile.ID,
			Name:      s.Profile.Name,
			AvatarURL: s.Profile.AvatarURL,
		}
	}
	for i, r := range s.Resources {
		resp.Pages = append(resp.Pages, pageResponse{
			ID:       r.ID,
			Name:     r.Name,
			Label:    panel.Pages[i].Label,
			Selected: panel.Pages[i].Selected,
		})
	}
	for i, m := range s.Metrics {
		block := panel.Metrics[i]
		mr := metricResponse{Name: m.Name, Title: block.Title, Values: make([]metricValueResponse, 0, len(m.Values))}
		for j, v := range m.Values {
			raw := v.Value
			if len(raw) == 0 {
				raw = nil
			}
			mr.Values = append(mr.Values, metricValueResponse{Value: raw, EndTime: v.EndTime, Line: block.Lines[j]})
		}
		resp.Metrics = append(resp.Metrics, mr)
	}
	if s.MetricsFetched && panel.NoData {
		resp.Message = panel.NoDataMessage
	}
	return resp
}

// clean は表示前に外部由来の文字列を無害化した状態のコピーを返す。
func (p *Presenter) clean(s insights.State) insights.State {
	if s.Profile != nil {
		profile := *s.Profile
		profile.Name = p.sanitize(profile.Name)
		profile.AvatarURL = p.safeURL(profile.AvatarURL)
		s.Profile = &profile
	}
	if len(s.Resources) > 0 {
		resources := make([]insights.ManagedResource, len(s.Resources))
		for i, r := range s.Resources {
			r.Name = p.sanitize(r.Name)
			resources[i] = r
		}
		s.Resources = resources
	}
	return s
}

func (p *Presenter) sanitize(text string) string {
	if p.sanitizer == nil {
		return text
	}
	return p.sanitizer.SanitizeText(text)
}

func (p *Presenter) safeURL(raw string) string {
	if raw == "" || p.validator == nil {
		return raw
	}
	if err := p.validator.ValidateURL(raw); err != nil {
		slog.Warn("avatar url rejected", slog.String("error", err.Error()))
		return ""
	}
	return raw
}
