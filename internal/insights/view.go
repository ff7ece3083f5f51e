package insights

import "fmt"

// PageOption はページ選択肢1件の表示内容。
type PageOption struct {
	ID       string
	Label    string
	Selected bool
}

// MetricBlock はメトリクス1件の表示内容。
type MetricBlock struct {
	Name  string
	Title string
	Lines []string
}

// Panel は状態から導出した表示用モデル。
type Panel struct {
	Phase     string
	LoggedIn  bool
	Name      string
	AvatarURL string

	// ShowPicker はページが1件以上ある場合のみtrue。期間入力と送信ボタンもこれに従う。
	ShowPicker bool
	Pages      []PageOption
	SelectedID string
	Since      string
	Until      string
	CanSubmit  bool

	Metrics       []MetricBlock
	NoData        bool
	NoDataMessage string
}

// NewPanel は状態から表示用モデルを組み立てる。
func NewPanel(s State) Panel {
	p := Panel{
		Phase:         s.Phase().String(),
		LoggedIn:      s.Authenticated(),
		SelectedID:    s.SelectedID,
		Since:         s.Range.Since,
		Until:         s.Range.Until,
		CanSubmit:     s.CanSubmit(),
		NoDataMessage: NoDataMessage,
	}
	if s.Profile != nil {
		p.Name = s.Profile.Name
		p.AvatarURL = s.Profile.AvatarURL
	}

	p.ShowPicker = len(s.Resources) > 0
	for _, r := range s.Resources {
		p.Pages = append(p.Pages, PageOption{
			ID:       r.ID,
			Label:    fmt.Sprintf("%s (ID: %s)", r.Name, r.ID),
			Selected: r.ID == s.SelectedID,
		})
	}

	for _, m := range s.Metrics {
		block := MetricBlock{
			Name:  m.Name,
			Title: DisplayMetricName(m.Name),
		}
		for _, v := range m.Values {
			block.Lines = append(block.Lines, fmt.Sprintf("%s: %s", v.EndTime, v.String()))
		}
		p.Metrics = append(p.Metrics, block)
	}
	p.NoData = len(p.Metrics) == 0

	return p
}
