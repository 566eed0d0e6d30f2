package theme

import (
	"strings"
	"testing"

	"github.com/nhle/mailctl/internal/model"
)

func TestFlagMarker(t *testing.T) {
	tests := []struct {
		name  string
		flags model.Flags
		want  string
	}{
		{"unseen", model.NewFlags(), "*"},
		{"flagged wins", model.NewFlags(model.FlagSeen, model.FlagFlagged), "!"},
		{"answered", model.NewFlags(model.FlagSeen, model.FlagAnswered), "R"},
		{"seen", model.NewFlags(model.FlagSeen), " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FlagMarker(tt.flags)
			if !strings.Contains(got, tt.want) {
				t.Errorf("FlagMarker(%v) = %q, want it to contain %q", tt.flags, got, tt.want)
			}
		})
	}
}

func TestAttachmentMarker(t *testing.T) {
	if got := AttachmentMarker(false); got != "" {
		t.Errorf("AttachmentMarker(false) = %q, want empty", got)
	}
	if got := AttachmentMarker(true); !strings.Contains(got, "@") {
		t.Errorf("AttachmentMarker(true) = %q, want @", got)
	}
}
