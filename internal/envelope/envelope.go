// Package envelope turns backend-native envelope listings into the
// presentation model, replacing native identifiers with aliases.
package envelope

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nhle/mailctl/internal/alias"
	"github.com/nhle/mailctl/internal/backend"
	"github.com/nhle/mailctl/internal/model"
)

// DateOptions controls how envelope dates are rendered.
type DateOptions struct {
	// Layout is a Go time layout. Empty means time.RFC3339.
	Layout string

	// Local converts dates to the local time zone before formatting.
	Local bool
}

func (o DateOptions) format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if o.Local {
		t = t.Local()
	}
	layout := o.Layout
	if layout == "" {
		layout = time.RFC3339
	}
	return t.Format(layout)
}

// GraphError reports an edge whose endpoint could not be translated.
type GraphError struct {
	Parent string
	Child  string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("thread edge %s -> %s references a message missing from the graph", e.Parent, e.Child)
}

// IsGraphError reports whether err (or any error in its chain) is a
// GraphError.
func IsGraphError(err error) bool {
	var graphErr *GraphError
	return errors.As(err, &graphErr)
}

// FromBackend translates a flat listing. The output keeps the backend's
// order.
func FromBackend(
	ctx context.Context,
	aliases alias.Store,
	natives []backend.Envelope,
	dates DateOptions,
) (model.Envelopes, error) {
	envelopes := make(model.Envelopes, 0, len(natives))
	for _, native := range natives {
		id, err := aliases.GetOrCreateAlias(ctx, native.ID)
		if err != nil {
			return nil, fmt.Errorf("aliasing envelope %s: %w", native.ID, err)
		}
		envelopes = append(envelopes, translate(id, native, dates))
	}
	return envelopes, nil
}

// ThreadsFromBackend translates a native reply graph into an alias-keyed
// graph with the same edges. Edges whose parent was referenced but never
// fetched are re-attached to the synthetic root.
func ThreadsFromBackend(
	ctx context.Context,
	aliases alias.Store,
	threaded *backend.ThreadedEnvelopes,
	dates DateOptions,
) (*model.ThreadGraph, error) {
	graph := model.NewThreadGraph()
	if threaded == nil {
		return graph, nil
	}

	// Edges are copied out before any node is touched.
	edges := make([]backend.Edge, len(threaded.Edges))
	copy(edges, threaded.Edges)

	resolved := map[string]string{backend.RootID: model.RootID}
	resolve := func(native string) (string, error) {
		if id, ok := resolved[native]; ok {
			return id, nil
		}
		id, err := aliases.GetOrCreateAlias(ctx, native)
		if err != nil {
			return "", fmt.Errorf("aliasing %s: %w", native, err)
		}
		resolved[native] = id
		return id, nil
	}

	for _, e := range edges {
		if _, err := resolve(e.Parent); err != nil {
			return nil, err
		}
		if _, err := resolve(e.Child); err != nil {
			return nil, err
		}
	}

	for _, nativeID := range threaded.IDs() {
		id, err := resolve(nativeID)
		if err != nil {
			return nil, err
		}
		graph.AddNode(translate(id, threaded.Envelopes[nativeID], dates))
	}

	for _, e := range edges {
		parent, child := resolved[e.Parent], resolved[e.Child]
		if !graph.HasNode(child) {
			return nil, &GraphError{Parent: parent, Child: child}
		}
		if !graph.HasNode(parent) {
			parent = model.RootID
		}
		graph.AddEdge(parent, child, e.Weight)
	}

	return graph, nil
}

func translate(id string, native backend.Envelope, dates DateOptions) model.Envelope {
	flags := make([]model.Flag, 0, len(native.Flags))
	for _, f := range native.Flags {
		flags = append(flags, model.Flag(f))
	}
	return model.Envelope{
		ID:            id,
		Flags:         model.NewFlags(flags...),
		Subject:       native.Subject,
		From:          model.Mailbox{Name: native.From.Name, Addr: native.From.Addr},
		To:            model.Mailbox{Name: native.To.Name, Addr: native.To.Addr},
		Date:          dates.format(native.Date),
		HasAttachment: native.HasAttachment,
	}
}
