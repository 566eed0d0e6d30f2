package backend

import (
	"sort"
	"strings"
)

// Flag is a message flag. Custom flags keep their own name.
type Flag string

const (
	FlagSeen     Flag = "seen"
	FlagAnswered Flag = "answered"
	FlagFlagged  Flag = "flagged"
	FlagDeleted  Flag = "deleted"
	FlagDraft    Flag = "draft"
)

var systemFlags = map[string]Flag{
	`\seen`:     FlagSeen,
	`\answered`: FlagAnswered,
	`\flagged`:  FlagFlagged,
	`\deleted`:  FlagDeleted,
	`\draft`:    FlagDraft,
}

// ParseFlag converts an IMAP-style flag (`\Seen`) or a plain name (`seen`)
// into a Flag.
func ParseFlag(s string) Flag {
	lower := strings.ToLower(strings.TrimSpace(s))
	if f, ok := systemFlags[lower]; ok {
		return f
	}
	switch Flag(lower) {
	case FlagSeen, FlagAnswered, FlagFlagged, FlagDeleted, FlagDraft:
		return Flag(lower)
	}
	return Flag(strings.TrimSpace(s))
}

// IsCustom reports whether the flag is not one of the system flags.
func (f Flag) IsCustom() bool {
	switch f {
	case FlagSeen, FlagAnswered, FlagFlagged, FlagDeleted, FlagDraft:
		return false
	}
	return true
}

// HasFlag reports whether flags contains f.
func HasFlag(flags []Flag, f Flag) bool {
	for _, flag := range flags {
		if flag == f {
			return true
		}
	}
	return false
}

// SortFlags returns a sorted copy of flags without duplicates.
func SortFlags(flags []Flag) []Flag {
	seen := make(map[Flag]bool, len(flags))
	out := make([]Flag, 0, len(flags))
	for _, f := range flags {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
