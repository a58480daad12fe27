package models

import "testing"

func TestSearchQuery_Validate(t *testing.T) {
	q := &SearchQuery{Keywords: []string{"  walkability ", "", " "}}
	if err := q.Validate(20, 100); err != nil {
		t.Fatal(err)
	}
	if len(q.Keywords) != 1 || q.Keywords[0] != "walkability" {
		t.Errorf("keywords: %v", q.Keywords)
	}
	if q.Limit != 20 {
		t.Errorf("limit: got %d, want default 20", q.Limit)
	}

	q = &SearchQuery{Keywords: []string{"x"}, Limit: 1000}
	_ = q.Validate(20, 100)
	if q.Limit != 100 {
		t.Errorf("limit should be clamped, got %d", q.Limit)
	}

	q = &SearchQuery{Keywords: []string{"x"}, Limit: -1}
	_ = q.Validate(20, 100)
	if q.Limit != -1 {
		t.Errorf("negative limit means unbounded and must be kept, got %d", q.Limit)
	}

	callerKeywords := []string{"", " urban ", "plaza"}
	q = &SearchQuery{Keywords: callerKeywords}
	if err := q.Validate(20, 100); err != nil {
		t.Fatal(err)
	}
	if callerKeywords[0] != "" || callerKeywords[1] != " urban " || callerKeywords[2] != "plaza" {
		t.Errorf("caller slice was modified: %q", callerKeywords)
	}
	if len(q.Keywords) != 2 || q.Keywords[0] != "urban" {
		t.Errorf("keywords: %v", q.Keywords)
	}

	if err := (&SearchQuery{Keywords: []string{" "}}).Validate(20, 100); err == nil {
		t.Error("expected error for blank keywords")
	}
	if err := (&SearchQuery{Keywords: []string{"x"}, YearFrom: 2020, YearTo: 2010}).Validate(20, 100); err == nil {
		t.Error("expected error for inverted year range")
	}
}

func TestYearRange_Contains(t *testing.T) {
	tests := []struct {
		name string
		r    YearRange
		year int
		want bool
	}{
		{"open range takes unknown year", YearRange{}, 0, true},
		{"closed range rejects unknown year", YearRange{From: 2000}, 0, false},
		{"lower bound inclusive", YearRange{From: 2000, To: 2010}, 2000, true},
		{"upper bound inclusive", YearRange{From: 2000, To: 2010}, 2010, true},
		{"after upper bound", YearRange{To: 2010}, 2011, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Contains(tt.year); got != tt.want {
				t.Errorf("Contains(%d) = %v, want %v", tt.year, got, tt.want)
			}
		})
	}
}

func TestInteractionLog_Validate(t *testing.T) {
	if err := (&InteractionLog{EventType: EventClick}).Validate(); err != nil {
		t.Error(err)
	}
	if err := (&InteractionLog{EventType: "hover"}).Validate(); err == nil {
		t.Error("expected error for unknown event type")
	}
	zero, neg, first := 0, int64(-1), 1
	if err := (&InteractionLog{EventType: EventClick, Rank: &zero}).Validate(); err == nil {
		t.Error("expected error for rank 0")
	}
	if err := (&InteractionLog{EventType: EventAccept, PaperID: &neg}).Validate(); err == nil {
		t.Error("expected error for negative paper id")
	}
	if err := (&InteractionLog{EventType: EventAccept, Rank: &first}).Validate(); err != nil {
		t.Error(err)
	}
}
