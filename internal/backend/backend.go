package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Kind identifies a backend variant.
type Kind string

const (
	KindNone     Kind = "none"
	KindIMAP     Kind = "imap"
	KindMaildir  Kind = "maildir"
	KindIndex    Kind = "index"
	KindSMTP     Kind = "smtp"
	KindSendmail Kind = "sendmail"
)

// Category groups backend variants by the selection they belong to.
type Category int

const (
	CategoryNone Category = iota
	CategoryRead
	CategorySend
)

func (c Category) String() string {
	switch c {
	case CategoryRead:
		return "read"
	case CategorySend:
		return "send"
	default:
		return "none"
	}
}

// Category returns the selection category a variant can fill.
func (k Kind) Category() Category {
	switch k {
	case KindIMAP, KindMaildir, KindIndex:
		return CategoryRead
	case KindSMTP, KindSendmail:
		return CategorySend
	default:
		return CategoryNone
	}
}

// ParseKind converts a configuration value into a Kind. The empty string
// is treated as KindNone.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindNone:
		return KindNone, nil
	case KindIMAP, KindMaildir, KindIndex, KindSMTP, KindSendmail:
		return k, nil
	default:
		return KindNone, fmt.Errorf("unknown backend type %q", s)
	}
}

// Feature is one of the operations a session may implement.
type Feature int

const (
	FeatureListFolders Feature = iota
	FeatureListEnvelopes
	FeatureGetMessages
	FeatureAddMessage
	FeatureSendMessage
	FeatureCopyMessages
	FeatureMoveMessages
	FeatureDeleteMessages
)

// Features lists every feature in declaration order.
var Features = []Feature{
	FeatureListFolders,
	FeatureListEnvelopes,
	FeatureGetMessages,
	FeatureAddMessage,
	FeatureSendMessage,
	FeatureCopyMessages,
	FeatureMoveMessages,
	FeatureDeleteMessages,
}

var featureNames = map[Feature]string{
	FeatureListFolders:    "list-folders",
	FeatureListEnvelopes:  "list-envelopes",
	FeatureGetMessages:    "get-messages",
	FeatureAddMessage:     "add-message",
	FeatureSendMessage:    "send-message",
	FeatureCopyMessages:   "copy-messages",
	FeatureMoveMessages:   "move-messages",
	FeatureDeleteMessages: "delete-messages",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// Category returns the selection that routes the feature. Sending is the
// only feature routed by the sending selection.
func (f Feature) Category() Category {
	if f == FeatureSendMessage {
		return CategorySend
	}
	return CategoryRead
}

// Implements reports whether the session provides the capability
// interface matching the feature.
func Implements(s Session, f Feature) bool {
	if s == nil {
		return false
	}
	var ok bool
	switch f {
	case FeatureListFolders:
		_, ok = s.(FolderLister)
	case FeatureListEnvelopes:
		_, ok = s.(EnvelopeLister)
	case FeatureGetMessages:
		_, ok = s.(MessageGetter)
	case FeatureAddMessage:
		_, ok = s.(MessageAdder)
	case FeatureSendMessage:
		_, ok = s.(MessageSender)
	case FeatureCopyMessages:
		_, ok = s.(MessageCopier)
	case FeatureMoveMessages:
		_, ok = s.(MessageMover)
	case FeatureDeleteMessages:
		_, ok = s.(MessageDeleter)
	}
	return ok
}

// Session is a live connection or handle owned by an account context.
// Closing it releases network connections and file handles.
type Session interface {
	io.Closer
}

// Initializer yields a live session for one backend variant.
type Initializer interface {
	Kind() Kind
	Build(ctx context.Context) (Session, error)
}

// FolderLister lists the folders of the backend.
type FolderLister interface {
	ListFolders(ctx context.Context) ([]Folder, error)
}

// EnvelopeLister lists the envelopes of a folder, newest first.
type EnvelopeLister interface {
	ListEnvelopes(ctx context.Context, folder string, opts ListOptions) ([]Envelope, error)
}

// EnvelopeThreader is implemented by sessions able to build reply
// graphs themselves. Sessions without it are threaded with Thread.
type EnvelopeThreader interface {
	ThreadEnvelopes(ctx context.Context, folder string, opts ListOptions) (*ThreadedEnvelopes, error)
}

// MessageGetter returns raw messages by native id.
type MessageGetter interface {
	GetMessages(ctx context.Context, folder string, ids []string) ([]Message, error)
}

// MessageAdder stores a raw message in a folder and returns its native id.
// The id may be empty when the backend cannot report it.
type MessageAdder interface {
	AddMessage(ctx context.Context, folder string, raw []byte, flags []Flag) (string, error)
}

// MessageSender delivers a raw message.
type MessageSender interface {
	SendMessage(ctx context.Context, raw []byte) error
}

// MessageCopier copies messages between folders.
type MessageCopier interface {
	CopyMessages(ctx context.Context, from, to string, ids []string) error
}

// MessageMover moves messages between folders.
type MessageMover interface {
	MoveMessages(ctx context.Context, from, to string, ids []string) error
}

// MessageDeleter removes messages from a folder.
type MessageDeleter interface {
	DeleteMessages(ctx context.Context, folder string, ids []string) error
}

// ListOptions controls pagination for envelope listings. Page starts at 1;
// a PageSize of zero returns everything.
type ListOptions struct {
	Page     int
	PageSize int
}

// Bounds returns the half-open slice bounds of the requested page within
// a listing of n items.
func (o ListOptions) Bounds(n int) (int, int) {
	if o.PageSize <= 0 {
		return 0, n
	}
	page := o.Page
	if page < 1 {
		page = 1
	}
	start := (page - 1) * o.PageSize
	if start >= n {
		return n, n
	}
	end := start + o.PageSize
	if end > n {
		end = n
	}
	return start, end
}

// Folder is a backend folder.
type Folder struct {
	Name string
	Desc string
}

// Address is a mailbox address with an optional display name.
type Address struct {
	Name string
	Addr string
}

// Envelope is the backend-native summary of a message.
type Envelope struct {
	// ID is the backend-native identifier (UID, maildir key, Message-ID).
	ID            string
	MessageID     string
	InReplyTo     string
	Flags         []Flag
	Subject       string
	From          Address
	To            Address
	Date          time.Time
	HasAttachment bool
}

// Message is a raw RFC 5322 message.
type Message struct {
	ID  string
	Raw []byte
}

// AuthError indicates that a remote backend rejected the credentials.
type AuthError struct {
	Kind    Kind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Kind, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// UnsupportedError is returned when no live session implements a feature
// for the current selection.
type UnsupportedError struct {
	Feature Feature
	Kind    Kind
}

func (e *UnsupportedError) Error() string {
	if e.Kind == KindNone || e.Kind == "" {
		return fmt.Sprintf("%s is not supported: no %s backend configured", e.Feature, e.Feature.Category())
	}
	return fmt.Sprintf("%s is not supported by backend %s", e.Feature, e.Kind)
}

// IsUnsupported reports whether err (or any error in its chain) is an
// UnsupportedError.
func IsUnsupported(err error) bool {
	var unsupported *UnsupportedError
	return errors.As(err, &unsupported)
}

// BuildError wraps a session initialization failure.
type BuildError struct {
	Kind Kind
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s session: %v", e.Kind, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// IsBuildError reports whether err (or any error in its chain) is a BuildError.
func IsBuildError(err error) bool {
	var buildErr *BuildError
	return errors.As(err, &buildErr)
}

// ErrMessageNotFound is wrapped by sessions when a native id does not
// exist in the requested folder.
var ErrMessageNotFound = errors.New("message not found")

// ErrFolderNotFound is wrapped by sessions when a folder does not exist.
var ErrFolderNotFound = errors.New("folder not found")
