package model

import "sort"

// Flag is a user-facing message flag.
type Flag string

const (
	FlagSeen     Flag = "seen"
	FlagAnswered Flag = "answered"
	FlagFlagged  Flag = "flagged"
	FlagDeleted  Flag = "deleted"
	FlagDraft    Flag = "draft"
)

// Flags is a set of flags, kept sorted so listings are deterministic.
type Flags []Flag

// NewFlags builds a sorted, duplicate-free flag set.
func NewFlags(flags ...Flag) Flags {
	seen := make(map[Flag]bool, len(flags))
	out := make(Flags, 0, len(flags))
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

// Contains reports whether f is part of the set.
func (fs Flags) Contains(f Flag) bool {
	for _, flag := range fs {
		if flag == f {
			return true
		}
	}
	return false
}

// Mailbox is an address with an optional display name.
type Mailbox struct {
	Name string `json:"name,omitempty"`
	Addr string `json:"addr"`
}

// String returns the display name when present, the address otherwise.
func (m Mailbox) String() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Addr
}

// Envelope is the presentation form of a message summary. It is built
// once per listing and never mutated afterwards.
type Envelope struct {
	// ID is the alias shown to the user in place of the native identifier.
	ID string `json:"id"`

	// Flags holds the message flags.
	Flags Flags `json:"flags"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// From is the first sender of the message.
	From Mailbox `json:"from"`

	// To is the first recipient of the message.
	To Mailbox `json:"to"`

	// Date is the message date formatted for the account.
	Date string `json:"date"`

	// HasAttachment is set when at least one part is an attachment.
	HasAttachment bool `json:"has_attachment"`
}

// Envelopes is an ordered envelope listing.
type Envelopes []Envelope

// Folder is the presentation form of a backend folder.
type Folder struct {
	Name string `json:"name"`
	Desc string `json:"desc"`
}

// Message is a raw message addressed by its alias.
type Message struct {
	ID  string `json:"id"`
	Raw []byte `json:"-"`
}
