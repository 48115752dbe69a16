package github

import (
	"testing"
)

func TestNumberFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    int
		wantErr bool
	}{
		{"https://github.com/acme/widget/pull/42", 42, false},
		{"https://github.com/acme/widget/pull/42/", 42, false},
		{"https://github.com/acme/widget/pull/7", 7, false},
		{"https://github.com/acme/widget/issues/42", 0, true},
		{"https://github.com/acme/widget", 0, true},
		{"https://github.com/acme/widget/pull/abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := NumberFromURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NumberFromURL(%q) expected error, got %d", tt.url, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("NumberFromURL(%q) unexpected error: %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("NumberFromURL(%q) = %d, want %d", tt.url, got, tt.want)
		}
	}
}

func TestParsePRJSON(t *testing.T) {
	data := []byte(`{"number":12,"url":"https://github.com/acme/widget/pull/12","state":"OPEN","isDraft":true,"title":"Add login flow"}`)
	info, err := parsePRJSON(data)
	if err != nil {
		t.Fatalf("parsePRJSON: %v", err)
	}
	if info.Number != 12 {
		t.Errorf("Number = %d, want 12", info.Number)
	}
	if info.State != PRStateDraft {
		t.Errorf("State = %s, want %s", info.State, PRStateDraft)
	}
	if info.Title != "Add login flow" {
		t.Errorf("Title = %q", info.Title)
	}
}

func TestParsePRJSONStates(t *testing.T) {
	tests := []struct {
		state   string
		isDraft bool
		want    PRState
	}{
		{"OPEN", false, PRStateOpen},
		{"OPEN", true, PRStateDraft},
		{"open", false, PRStateOpen},
		{"CLOSED", false, PRStateClosed},
		{"MERGED", false, PRStateMerged},
		{"UNKNOWN", false, PRStateOpen},
	}

	for _, tt := range tests {
		data := []byte(`{"number":1,"url":"u","state":"` + tt.state + `","isDraft":` + boolStr(tt.isDraft) + `,"title":"t"}`)
		info, err := parsePRJSON(data)
		if err != nil {
			t.Fatalf("parsePRJSON(%s): %v", tt.state, err)
		}
		if info.State != tt.want {
			t.Errorf("state %s draft=%v: got %s, want %s", tt.state, tt.isDraft, info.State, tt.want)
		}
	}
}

func TestParsePRJSONInvalid(t *testing.T) {
	if _, err := parsePRJSON([]byte("not json")); err == nil {
		t.Error("expected error for invalid json")
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
