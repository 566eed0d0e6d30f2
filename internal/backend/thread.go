package backend

import "sort"

// RootID is the native id of the synthetic thread root.
const RootID = "0"

// Edge links a parent message to one of its replies. Weight is the depth
// of the reply below the thread root.
type Edge struct {
	Parent string
	Child  string
	Weight int
}

// ThreadedEnvelopes is a backend-native reply graph. Edge endpoints are
// native ids; a parent may be absent from Envelopes when it was only
// referenced and never fetched.
type ThreadedEnvelopes struct {
	Envelopes map[string]Envelope
	Edges     []Edge
}

// Thread builds a reply graph from Message-ID and In-Reply-To headers.
// Messages whose parent is not part of the listing hang off RootID.
func Thread(envelopes []Envelope) *ThreadedEnvelopes {
	threaded := &ThreadedEnvelopes{
		Envelopes: make(map[string]Envelope, len(envelopes)),
	}

	byMessageID := make(map[string]string, len(envelopes))
	for _, env := range envelopes {
		threaded.Envelopes[env.ID] = env
		if env.MessageID != "" {
			byMessageID[env.MessageID] = env.ID
		}
	}

	parentOf := func(env Envelope) (string, bool) {
		if env.InReplyTo == "" {
			return "", false
		}
		id, ok := byMessageID[env.InReplyTo]
		if !ok || id == env.ID {
			return "", false
		}
		return id, true
	}

	depth := make(map[string]int, len(envelopes))
	var depthOf func(id string, visiting map[string]bool) int
	depthOf = func(id string, visiting map[string]bool) int {
		if d, ok := depth[id]; ok {
			return d
		}
		parent, ok := parentOf(threaded.Envelopes[id])
		if !ok || visiting[parent] {
			depth[id] = 0
			return 0
		}
		visiting[id] = true
		d := depthOf(parent, visiting) + 1
		depth[id] = d
		return d
	}

	for _, env := range envelopes {
		weight := depthOf(env.ID, map[string]bool{})
		parent := RootID
		if weight > 0 {
			parent, _ = parentOf(env)
		}
		threaded.Edges = append(threaded.Edges, Edge{
			Parent: parent,
			Child:  env.ID,
			Weight: weight,
		})
	}

	return threaded
}

// Restrict keeps the envelopes whose id is in ids together with the edges
// leading to them. Parents outside ids stay referenced by their edges.
func (t *ThreadedEnvelopes) Restrict(ids []string) *ThreadedEnvelopes {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	out := &ThreadedEnvelopes{Envelopes: make(map[string]Envelope, len(ids))}
	for id, env := range t.Envelopes {
		if keep[id] {
			out.Envelopes[id] = env
		}
	}
	for _, e := range t.Edges {
		if keep[e.Child] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

// IDs returns the native ids of the envelopes in a stable order.
func (t *ThreadedEnvelopes) IDs() []string {
	ids := make([]string, 0, len(t.Envelopes))
	for id := range t.Envelopes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
