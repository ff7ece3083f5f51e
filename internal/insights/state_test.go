package insights

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestReduce_FailureEvents_DoNotChangeState(t *testing.T) {
	s := NewState(DefaultDate)
	s, _ = Reduce(s, LoginSucceeded{Profile: *testProfile()})
	s, _ = Reduce(s, ResourcesLoaded{Resources: []ManagedResource{{ID: "p1", AccessToken: "pt1"}}})

	events := []Event{
		LoginFailed{Err: errors.New("denied")},
		ResourcesFailed{Err: errors.New("boom")},
		MetricsFailed{Seq: 1, Err: errors.New("boom")},
	}
	for _, e := range events {
		next, changed := Reduce(s, e)
		if changed {
			t.Errorf("%T で changed = true", e)
		}
		if next.Version != s.Version || len(next.Resources) != 1 {
			t.Errorf("%T で状態が変化した: %+v", e, next)
		}
	}
}

func TestReduce_ResourcesLoaded_ReplacesWholesale(t *testing.T) {
	s := NewState(DefaultDate)
	s, _ = Reduce(s, ResourcesLoaded{Resources: []ManagedResource{{ID: "a"}, {ID: "b"}}})
	s, _ = Reduce(s, ResourcesLoaded{Resources: []ManagedResource{{ID: "c"}}})

	if len(s.Resources) != 1 || s.Resources[0].ID != "c" {
		t.Errorf("Resources = %+v, want [c]", s.Resources)
	}
}

func TestReduce_ResourcesLoaded_DoesNotAliasInput(t *testing.T) {
	in := []ManagedResource{{ID: "a", Name: "A"}}
	s, _ := Reduce(NewState(DefaultDate), ResourcesLoaded{Resources: in})

	in[0].Name = "changed"
	if s.Resources[0].Name != "A" {
		t.Errorf("入力スライスの変更が状態に反映された: %q", s.Resources[0].Name)
	}
}

func TestReduce_MetricsLoaded_NilBecomesEmpty(t *testing.T) {
	s, _ := Reduce(NewState(DefaultDate), MetricsRequested{Seq: 1})
	s, changed := Reduce(s, MetricsLoaded{Seq: 1, Metrics: nil})

	if !changed {
		t.Fatal("MetricsLoaded で changed = false")
	}
	if s.Metrics == nil || !s.MetricsFetched {
		t.Errorf("Metrics = %#v, MetricsFetched = %v", s.Metrics, s.MetricsFetched)
	}
}

func TestReduce_MetricsRequested_RejectsNonIncreasingSeq(t *testing.T) {
	s, _ := Reduce(NewState(DefaultDate), MetricsRequested{Seq: 2})
	if _, changed := Reduce(s, MetricsRequested{Seq: 2}); changed {
		t.Error("同じ通番の要求で changed = true")
	}
}

func TestReduce_DateRangeChanged_UnknownField(t *testing.T) {
	s := NewState(DefaultDate)
	if _, changed := Reduce(s, DateRangeChanged{Field: "from", Value: "x"}); changed {
		t.Error("未知のフィールドで changed = true")
	}
}

func TestState_Phase(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  Phase
	}{
		{"anonymous", State{}, PhaseAnonymous},
		{"authenticated", State{Profile: testProfile()}, PhaseAuthenticated},
		{"listed", State{Profile: testProfile(), Resources: []ManagedResource{{ID: "p1"}}}, PhaseResourcesListed},
		{"selected", State{Profile: testProfile(), Resources: []ManagedResource{{ID: "p1"}}, SelectedID: "p1", SelectedToken: "t"}, PhaseResourceSelected},
		{"shown", State{Profile: testProfile(), SelectedID: "p1", MetricsFetched: true}, PhaseMetricsShown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Phase(); got != tt.want {
				t.Errorf("Phase() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDateField(t *testing.T) {
	for _, s := range []string{"since", "until"} {
		if _, err := ParseDateField(s); err != nil {
			t.Errorf("ParseDateField(%q) がエラーを返した: %v", s, err)
		}
	}
	if _, err := ParseDateField("Since"); !errors.Is(err, ErrUnknownDateField) {
		t.Errorf("ParseDateField(Since) err = %v, want ErrUnknownDateField", err)
	}
}

func TestEncodeDecodeState_PreservesFetchedFlag(t *testing.T) {
	s, _ := Reduce(NewState(DefaultDate), MetricsRequested{Seq: 1})
	s, _ = Reduce(s, MetricsLoaded{Seq: 1, Metrics: []MetricResult{}})

	data, err := EncodeState(s)
	if err != nil {
		t.Fatalf("EncodeState: %v", err)
	}
	got, err := DecodeState(data, DefaultDate)
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if !got.MetricsFetched || got.Metrics == nil || len(got.Metrics) != 0 {
		t.Errorf("復元後の状態 = %+v", got)
	}
	if got.Version != s.Version {
		t.Errorf("Version = %d, want %d", got.Version, s.Version)
	}
}

func TestDecodeState_EmptyObject_UsesDefaults(t *testing.T) {
	got, err := DecodeState([]byte("{}"), "2024-03-03")
	if err != nil {
		t.Fatalf("DecodeState: %v", err)
	}
	if got.Range.Since != "2024-03-03" || got.Range.Until != "2024-03-03" {
		t.Errorf("Range = %+v", got.Range)
	}
	if got.Authenticated() {
		t.Error("空データから認証済み状態が復元された")
	}
}

func TestMetricValue_String(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`42`, "42"},
		{`"text"`, "text"},
		{`{ "like": 3, "love": 1 }`, `{"like":3,"love":1}`},
		{``, ""},
	}
	for _, tt := range tests {
		v := MetricValue{Value: json.RawMessage(tt.raw)}
		if got := v.String(); got != tt.want {
			t.Errorf("String(%s) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
