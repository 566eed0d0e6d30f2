package maildir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nhle/mailctl/internal/backend"
)

func testMessage(subject, date string) []byte {
	return []byte("From: ann@example.com\r\n" +
		"To: bob@example.com\r\n" +
		"Subject: " + subject + "\r\n" +
		"Date: " + date + "\r\n" +
		"Message-ID: <" + subject + "@example.com>\r\n" +
		"\r\n" +
		"body of " + subject + "\r\n")
}

func openTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := s.CreateFolder("Archive"); err != nil {
		t.Fatalf("CreateFolder() error = %v", err)
	}
	return s
}

func TestOpenRequiresRoot(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Error("Open(\"\") succeeded")
	}
}

func TestSessionImplementsReadFeatures(t *testing.T) {
	s := openTestSession(t)
	for _, f := range backend.Features {
		want := f != backend.FeatureSendMessage
		if got := backend.Implements(s, f); got != want {
			t.Errorf("Implements(%s) = %v, want %v", f, got, want)
		}
	}
}

func TestListFolders(t *testing.T) {
	s := openTestSession(t)
	if err := s.CreateFolder("Work/Projects"); err != nil {
		t.Fatal(err)
	}
	// Not a maildir: ignored.
	if err := os.Mkdir(filepath.Join(s.Root(), ".junk"), 0o750); err != nil {
		t.Fatal(err)
	}

	folders, err := s.ListFolders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range folders {
		names = append(names, f.Name)
	}
	if got := strings.Join(names, ","); got != "INBOX,Archive,Work/Projects" {
		t.Errorf("folders = %s", got)
	}
}

func TestAddListGet(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)

	oldKey, err := s.AddMessage(ctx, "INBOX", testMessage("old", "Mon, 01 Jan 2024 10:00:00 +0000"), nil)
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	newKey, err := s.AddMessage(ctx, "INBOX",
		testMessage("new", "Tue, 02 Jan 2024 10:00:00 +0000"),
		[]backend.Flag{backend.FlagSeen, backend.FlagFlagged})
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if strings.Contains(newKey, ":2,") {
		t.Errorf("key %q contains the info suffix", newKey)
	}

	if _, err := os.Stat(filepath.Join(s.Root(), DirCur, newKey+":2,FS")); err != nil {
		t.Errorf("seen message not delivered to cur/ with flags: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), DirNew, oldKey+":2,")); err != nil {
		t.Errorf("unseen message not delivered to new/: %v", err)
	}

	envs, err := s.ListEnvelopes(ctx, "INBOX", backend.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(envs) != 2 || envs[0].ID != newKey || envs[1].ID != oldKey {
		t.Fatalf("ListEnvelopes() = %+v, want newest first", envs)
	}
	if !backend.HasFlag(envs[0].Flags, backend.FlagSeen) || !backend.HasFlag(envs[0].Flags, backend.FlagFlagged) {
		t.Errorf("flags = %v", envs[0].Flags)
	}
	if envs[0].MessageID != "new@example.com" {
		t.Errorf("MessageID = %q", envs[0].MessageID)
	}

	page, err := s.ListEnvelopes(ctx, "INBOX", backend.ListOptions{Page: 2, PageSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != oldKey {
		t.Errorf("page 2 = %+v", page)
	}

	msgs, err := s.GetMessages(ctx, "INBOX", []string{oldKey})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || !strings.Contains(string(msgs[0].Raw), "body of old") {
		t.Errorf("GetMessages() = %+v", msgs)
	}

	_, err = s.GetMessages(ctx, "INBOX", []string{"missing"})
	if !errors.Is(err, backend.ErrMessageNotFound) {
		t.Errorf("GetMessages(missing) error = %v", err)
	}
	_, err = s.ListEnvelopes(ctx, "Nope", backend.ListOptions{})
	if !errors.Is(err, backend.ErrFolderNotFound) {
		t.Errorf("ListEnvelopes(Nope) error = %v", err)
	}
}

func TestCopyMoveDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestSession(t)

	key, err := s.AddMessage(ctx, "INBOX", testMessage("a", "Mon, 01 Jan 2024 10:00:00 +0000"),
		[]backend.Flag{backend.FlagSeen})
	if err != nil {
		t.Fatal(err)
	}

	copies, err := s.CopyMessagesWithKeys(ctx, "INBOX", "Archive", []string{key})
	if err != nil {
		t.Fatalf("CopyMessages() error = %v", err)
	}
	if len(copies) != 1 || copies[0] == key {
		t.Fatalf("copy keys = %v", copies)
	}
	archived, err := s.ListEnvelopes(ctx, "Archive", backend.ListOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || !backend.HasFlag(archived[0].Flags, backend.FlagSeen) {
		t.Errorf("archived = %+v", archived)
	}

	if err := s.MoveMessages(ctx, "INBOX", "Archive", []string{key}); err != nil {
		t.Fatalf("MoveMessages() error = %v", err)
	}
	inbox, _ := s.ListEnvelopes(ctx, "INBOX", backend.ListOptions{})
	if len(inbox) != 0 {
		t.Errorf("INBOX still holds %d messages after move", len(inbox))
	}
	if _, err := s.GetMessages(ctx, "Archive", []string{key}); err != nil {
		t.Errorf("moved message lost its key: %v", err)
	}

	if err := s.DeleteMessages(ctx, "Archive", []string{key, copies[0]}); err != nil {
		t.Fatalf("DeleteMessages() error = %v", err)
	}
	archived, _ = s.ListEnvelopes(ctx, "Archive", backend.ListOptions{})
	if len(archived) != 0 {
		t.Errorf("Archive holds %d messages after delete", len(archived))
	}
}

func TestFlagsEncoding(t *testing.T) {
	flags := []backend.Flag{backend.FlagSeen, backend.FlagDraft, backend.Flag("custom"), backend.FlagSeen}
	if got := encodeFlags(flags); got != "DS" {
		t.Errorf("encodeFlags() = %q, want DS", got)
	}

	got := decodeFlags("1700000000.V1.host:2,RST")
	want := []backend.Flag{backend.FlagAnswered, backend.FlagDeleted, backend.FlagSeen}
	if len(got) != len(want) {
		t.Fatalf("decodeFlags() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decodeFlags()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if k := deliveryKey("1700000000.V1.host:2,S"); k != "1700000000.V1.host" {
		t.Errorf("deliveryKey() = %q", k)
	}
}
