// Package maildir implements the local maildir++ backend. The native id of
// a message is its delivery key: the file name without the ":2," info part.
package maildir

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/message"
	"github.com/nhle/mailctl/internal/model"
)

// Standard Maildir subdirectories
const (
	DirNew = "new" // Newly delivered messages, not yet seen
	DirCur = "cur" // Messages that have been seen/accessed
	DirTmp = "tmp" // Temporary directory for atomic writes
)

// Inbox is the folder stored at the maildir root.
const Inbox = "INBOX"

const (
	dirMode  fs.FileMode = 0o750
	fileMode fs.FileMode = 0o640
)

// Maildir flags as encoded in filenames
var maildirToFlag = map[rune]backend.Flag{
	'D': backend.FlagDraft,
	'F': backend.FlagFlagged,
	'R': backend.FlagAnswered,
	'S': backend.FlagSeen,
	'T': backend.FlagDeleted,
}

var flagToMaildir = map[backend.Flag]rune{
	backend.FlagDraft:    'D',
	backend.FlagFlagged:  'F',
	backend.FlagAnswered: 'R',
	backend.FlagSeen:     'S',
	backend.FlagDeleted:  'T',
}

// Initializer opens a maildir session.
type Initializer struct {
	cfg    model.MaildirConfig
	logger *slog.Logger
}

// NewInitializer returns the maildir initializer of an account.
func NewInitializer(cfg model.MaildirConfig, logger *slog.Logger) *Initializer {
	return &Initializer{cfg: cfg, logger: logger}
}

func (i *Initializer) Kind() backend.Kind {
	return backend.KindMaildir
}

func (i *Initializer) Build(_ context.Context) (backend.Session, error) {
	return Open(i.cfg.RootDir, i.logger)
}

// Session is a live maildir handle. It holds no open files between calls.
type Session struct {
	root     string
	hostname string
	logger   *slog.Logger
}

// Open prepares the maildir rooted at root, creating the INBOX
// directories when missing.
func Open(root string, logger *slog.Logger) (*Session, error) {
	if root == "" {
		return nil, fmt.Errorf("maildir root directory is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	// "/" and ":" are not allowed in delivery keys.
	hostname = strings.NewReplacer("/", `\057`, ":", `\072`).Replace(hostname)

	s := &Session{
		root:     root,
		hostname: hostname,
		logger:   logger.With("component", "maildir"),
	}
	if err := createMaildirDirs(root); err != nil {
		return nil, fmt.Errorf("preparing maildir %s: %w", root, err)
	}
	return s, nil
}

// Close releases nothing; maildir sessions keep no handles open.
func (s *Session) Close() error {
	return nil
}

// Root returns the maildir root directory.
func (s *Session) Root() string {
	return s.root
}

// createMaildirDirs creates the standard maildir subdirectories (tmp, new, cur)
func createMaildirDirs(path string) error {
	for _, dir := range []string{DirTmp, DirNew, DirCur} {
		if err := os.MkdirAll(filepath.Join(path, dir), dirMode); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// folderPath returns the directory of a folder. INBOX is the root, other
// folders are prefixed with '.' and use '.' as hierarchy delimiter.
func (s *Session) folderPath(folder string) string {
	if folder == "" || strings.EqualFold(folder, Inbox) {
		return s.root
	}
	return filepath.Join(s.root, "."+strings.ReplaceAll(folder, "/", "."))
}

func (s *Session) existingFolder(folder string) (string, error) {
	path := s.folderPath(folder)
	info, err := os.Stat(filepath.Join(path, DirCur))
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", backend.ErrFolderNotFound, folder)
	}
	return path, nil
}

// ListFolders returns INBOX followed by every maildir++ sub-folder.
func (s *Session) ListFolders(_ context.Context) ([]backend.Folder, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading maildir root: %w", err)
	}

	folders := []backend.Folder{{Name: Inbox, Desc: s.root}}
	var rest []backend.Folder
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, ".") || name == "." || name == ".." {
			continue
		}
		path := filepath.Join(s.root, name)
		if _, err := os.Stat(filepath.Join(path, DirCur)); err != nil {
			continue
		}
		// ".Folder.Subfolder" becomes "Folder/Subfolder"
		folder := strings.ReplaceAll(strings.TrimPrefix(name, "."), ".", "/")
		rest = append(rest, backend.Folder{Name: folder, Desc: path})
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })

	return append(folders, rest...), nil
}

// entry is one message file of a folder.
type entry struct {
	key    string
	subdir string
	name   string
}

func (e entry) path(folderPath string) string {
	return filepath.Join(folderPath, e.subdir, e.name)
}

func (e entry) flags() []backend.Flag {
	return decodeFlags(e.name)
}

// scan lists the messages of a folder keyed by delivery key.
func scan(folderPath string) (map[string]entry, error) {
	entries := make(map[string]entry)
	for _, subdir := range []string{DirNew, DirCur} {
		files, err := os.ReadDir(filepath.Join(folderPath, subdir))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", subdir, err)
		}
		for _, f := range files {
			if f.IsDir() || strings.HasPrefix(f.Name(), ".") {
				continue
			}
			key := deliveryKey(f.Name())
			entries[key] = entry{key: key, subdir: subdir, name: f.Name()}
		}
	}
	return entries, nil
}

func (s *Session) lookup(folder string, ids []string) (string, []entry, error) {
	path, err := s.existingFolder(folder)
	if err != nil {
		return "", nil, err
	}
	all, err := scan(path)
	if err != nil {
		return "", nil, err
	}
	found := make([]entry, 0, len(ids))
	for _, id := range ids {
		e, ok := all[id]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s in %s", backend.ErrMessageNotFound, id, folder)
		}
		found = append(found, e)
	}
	return path, found, nil
}

// ListEnvelopes parses every message of the folder and returns the
// requested page, newest first.
func (s *Session) ListEnvelopes(
	ctx context.Context,
	folder string,
	opts backend.ListOptions,
) ([]backend.Envelope, error) {
	path, err := s.existingFolder(folder)
	if err != nil {
		return nil, err
	}
	all, err := scan(path)
	if err != nil {
		return nil, err
	}

	envelopes := make([]backend.Envelope, 0, len(all))
	for _, e := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(e.path(path))
		if err != nil {
			return nil, fmt.Errorf("reading message %s: %w", e.key, err)
		}
		env, err := message.ParseEnvelope(e.key, raw)
		if err != nil {
			s.logger.Warn("skipping unparsable message", "folder", folder, "id", e.key, "error", err)
			continue
		}
		env.Flags = e.flags()
		envelopes = append(envelopes, env)
	}

	SortNewestFirst(envelopes)
	start, end := opts.Bounds(len(envelopes))
	return envelopes[start:end], nil
}

// SortNewestFirst orders envelopes by date, newest first, breaking ties
// by native id.
func SortNewestFirst(envelopes []backend.Envelope) {
	sort.SliceStable(envelopes, func(i, j int) bool {
		a, b := envelopes[i], envelopes[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		return a.ID > b.ID
	})
}

// GetMessages reads raw messages without changing their flags.
func (s *Session) GetMessages(_ context.Context, folder string, ids []string) ([]backend.Message, error) {
	path, found, err := s.lookup(folder, ids)
	if err != nil {
		return nil, err
	}

	messages := make([]backend.Message, 0, len(found))
	for _, e := range found {
		raw, err := os.ReadFile(e.path(path))
		if err != nil {
			return nil, fmt.Errorf("reading message %s: %w", e.key, err)
		}
		messages = append(messages, backend.Message{ID: e.key, Raw: raw})
	}
	return messages, nil
}

// AddMessage delivers raw into the folder through tmp/ and returns the
// delivery key.
func (s *Session) AddMessage(
	_ context.Context,
	folder string,
	raw []byte,
	flags []backend.Flag,
) (string, error) {
	path, err := s.existingFolder(folder)
	if err != nil {
		return "", err
	}
	return s.deliver(path, raw, flags)
}

func (s *Session) deliver(folderPath string, raw []byte, flags []backend.Flag) (string, error) {
	key := s.newKey()
	tmp := filepath.Join(folderPath, DirTmp, key)
	if err := os.WriteFile(tmp, raw, fileMode); err != nil {
		return "", fmt.Errorf("writing %s: %w", tmp, err)
	}

	subdir := DirNew
	if backend.HasFlag(flags, backend.FlagSeen) {
		subdir = DirCur
	}
	name := key + ":2," + encodeFlags(flags)
	if err := os.Rename(tmp, filepath.Join(folderPath, subdir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("delivering %s: %w", key, err)
	}

	s.logger.Debug("message delivered", "path", folderPath, "id", key)
	return key, nil
}

// newKey generates a unique delivery key: timestamp.uniqueId.hostname
func (s *Session) newKey() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d.U%s.%s", time.Now().Unix(), id, s.hostname)
}

// CopyMessages delivers a copy of each message into to. Copies get new keys.
func (s *Session) CopyMessages(ctx context.Context, from, to string, ids []string) error {
	_, err := s.CopyMessagesWithKeys(ctx, from, to, ids)
	return err
}

// CopyMessagesWithKeys is CopyMessages returning the key of every copy in
// input order.
func (s *Session) CopyMessagesWithKeys(_ context.Context, from, to string, ids []string) ([]string, error) {
	srcPath, found, err := s.lookup(from, ids)
	if err != nil {
		return nil, err
	}
	dstPath, err := s.existingFolder(to)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(found))
	for _, e := range found {
		raw, err := os.ReadFile(e.path(srcPath))
		if err != nil {
			return keys, fmt.Errorf("reading message %s: %w", e.key, err)
		}
		key, err := s.deliver(dstPath, raw, e.flags())
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// MoveMessages renames message files into to. Keys are preserved.
func (s *Session) MoveMessages(_ context.Context, from, to string, ids []string) error {
	srcPath, found, err := s.lookup(from, ids)
	if err != nil {
		return err
	}
	dstPath, err := s.existingFolder(to)
	if err != nil {
		return err
	}

	for _, e := range found {
		dst := filepath.Join(dstPath, e.subdir, e.name)
		if err := os.Rename(e.path(srcPath), dst); err != nil {
			return fmt.Errorf("moving message %s to %s: %w", e.key, to, err)
		}
	}
	return nil
}

// DeleteMessages unlinks message files.
func (s *Session) DeleteMessages(_ context.Context, folder string, ids []string) error {
	path, found, err := s.lookup(folder, ids)
	if err != nil {
		return err
	}
	for _, e := range found {
		if err := os.Remove(e.path(path)); err != nil {
			return fmt.Errorf("deleting message %s: %w", e.key, err)
		}
	}
	return nil
}

// CreateFolder creates the maildir++ directories of folder.
func (s *Session) CreateFolder(folder string) error {
	return createMaildirDirs(s.folderPath(folder))
}

// deliveryKey strips the ":2," info suffix from a file name.
func deliveryKey(name string) string {
	if idx := strings.LastIndex(name, ":2,"); idx != -1 {
		return name[:idx]
	}
	return name
}

// encodeFlags converts flags to the maildir info suffix. Flags are sorted
// alphabetically; custom flags have no maildir letter and are dropped.
func encodeFlags(flags []backend.Flag) string {
	var letters []rune
	seen := make(map[rune]bool)
	for _, f := range flags {
		r, ok := flagToMaildir[f]
		if !ok || seen[r] {
			continue
		}
		seen[r] = true
		letters = append(letters, r)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	return string(letters)
}

// decodeFlags converts the info suffix of a file name back to flags.
func decodeFlags(name string) []backend.Flag {
	idx := strings.LastIndex(name, ":2,")
	if idx == -1 {
		return nil
	}
	var flags []backend.Flag
	for _, r := range name[idx+3:] {
		if f, ok := maildirToFlag[r]; ok {
			flags = append(flags, f)
		}
	}
	return backend.SortFlags(flags)
}
