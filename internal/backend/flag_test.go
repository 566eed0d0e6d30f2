package backend

import (
	"reflect"
	"testing"
)

func TestParseFlag(t *testing.T) {
	tests := []struct {
		in   string
		want Flag
	}{
		{`\Seen`, FlagSeen},
		{`\ANSWERED`, FlagAnswered},
		{"flagged", FlagFlagged},
		{" Draft ", FlagDraft},
		{`\Deleted`, FlagDeleted},
		{"$Label1", "$Label1"},
		{" custom ", "custom"},
	}
	for _, tt := range tests {
		if got := ParseFlag(tt.in); got != tt.want {
			t.Errorf("ParseFlag(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsCustom(t *testing.T) {
	if FlagSeen.IsCustom() {
		t.Error("seen reported as custom")
	}
	if !Flag("$Label1").IsCustom() {
		t.Error("$Label1 not reported as custom")
	}
}

func TestSortFlags(t *testing.T) {
	got := SortFlags([]Flag{FlagSeen, "", FlagAnswered, FlagSeen, "$x"})
	want := []Flag{"$x", FlagAnswered, FlagSeen}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("SortFlags() = %v, want %v", got, want)
	}
	if !HasFlag(got, FlagAnswered) || HasFlag(got, FlagDraft) {
		t.Errorf("HasFlag() on %v gave wrong answers", got)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in       string
		want     Kind
		category Category
		wantErr  bool
	}{
		{"", KindNone, CategoryNone, false},
		{"imap", KindIMAP, CategoryRead, false},
		{"index", KindIndex, CategoryRead, false},
		{"sendmail", KindSendmail, CategorySend, false},
		{"pop3", KindNone, CategoryNone, true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want || got.Category() != tt.category {
			t.Errorf("ParseKind(%q) = %q (%s), want %q (%s)", tt.in, got, got.Category(), tt.want, tt.category)
		}
	}
}
