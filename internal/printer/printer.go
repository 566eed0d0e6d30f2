// Package printer renders listings as terminal tables and trees or as JSON.
package printer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/nhle/mailctl/internal/message"
	"github.com/nhle/mailctl/internal/model"
	"github.com/nhle/mailctl/internal/store"
	"github.com/nhle/mailctl/internal/theme"
)

// Format selects the output encoding.
type Format string

const (
	FormatPlain Format = "plain"
	FormatJSON  Format = "json"
)

// ParseFormat validates an --output value.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want plain or json)", s)
	}
}

// Printer writes command results to w.
type Printer struct {
	w      io.Writer
	format Format
}

// New returns a printer writing to w.
func New(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

func (p *Printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) table(headers []string, rows [][]string) error {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(theme.BorderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.HeaderStyle
			}
			return theme.CellStyle
		})
	_, err := fmt.Fprintln(p.w, t.Render())
	return err
}

// Folders prints a folder listing.
func (p *Printer) Folders(folders []model.Folder) error {
	if p.format == FormatJSON {
		if folders == nil {
			folders = []model.Folder{}
		}
		return p.json(folders)
	}

	rows := make([][]string, 0, len(folders))
	for _, f := range folders {
		rows = append(rows, []string{f.Name, f.Desc})
	}
	return p.table([]string{"NAME", "DESC"}, rows)
}

// Envelopes prints an envelope listing.
func (p *Printer) Envelopes(envs model.Envelopes) error {
	if p.format == FormatJSON {
		if envs == nil {
			envs = model.Envelopes{}
		}
		return p.json(envs)
	}

	rows := make([][]string, 0, len(envs))
	for _, env := range envs {
		rows = append(rows, []string{
			theme.IDStyle.Render(env.ID),
			theme.FlagMarker(env.Flags) + theme.AttachmentMarker(env.HasAttachment),
			theme.SubjectStyle(env.Flags).Render(env.Subject),
			env.From.String(),
			env.Date,
		})
	}
	return p.table([]string{"ID", "FLAGS", "SUBJECT", "FROM", "DATE"}, rows)
}

// Thread prints a reply graph as a tree hanging off the synthetic root.
func (p *Printer) Thread(g *model.ThreadGraph) error {
	if p.format == FormatJSON {
		return p.json(g)
	}

	root := tree.Root(theme.RootStyle.Render("root")).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(theme.BorderStyle)

	// Children of an unfetched parent are attached to the root with their
	// original depth, so every root edge is followed regardless of weight.
	for _, e := range rootEdges(g) {
		root.Child(subtree(g, e.Child, e.Weight))
	}

	_, err := fmt.Fprintln(p.w, root.String())
	return err
}

func rootEdges(g *model.ThreadGraph) []model.ThreadEdge {
	var edges []model.ThreadEdge
	for _, e := range g.Edges {
		if e.Parent == model.RootID {
			edges = append(edges, e)
		}
	}
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight < edges[j].Weight
		}
		return model.LessAlias(edges[i].Child, edges[j].Child)
	})
	return edges
}

func subtree(g *model.ThreadGraph, id string, weight int) *tree.Tree {
	t := tree.Root(nodeLabel(g.Nodes[id]))
	for _, child := range g.Children(id, weight+1) {
		t.Child(subtree(g, child.ID, weight+1))
	}
	return t
}

func nodeLabel(env model.Envelope) string {
	label := fmt.Sprintf("%s %s %s",
		theme.IDStyle.Render(env.ID),
		theme.FlagMarker(env.Flags),
		theme.SubjectStyle(env.Flags).Render(env.Subject),
	)
	if from := env.From.String(); from != "" {
		label += " (" + from + ")"
	}
	return label
}

// Aliases prints the alias bindings of one folder.
func (p *Printer) Aliases(records []store.AliasRecord) error {
	if p.format == FormatJSON {
		if records == nil {
			records = []store.AliasRecord{}
		}
		return p.json(records)
	}

	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{theme.IDStyle.Render(strconv.FormatInt(r.ShortID, 10)), r.NativeID})
	}
	return p.table([]string{"ID", "NATIVE ID"}, rows)
}

// messageView is the JSON form of a read message.
type messageView struct {
	ID          string               `json:"id"`
	Text        string               `json:"text,omitempty"`
	HTML        string               `json:"html,omitempty"`
	Attachments []message.Attachment `json:"attachments,omitempty"`
}

// Messages prints the bodies of read messages. Plain output prefers the
// text part and falls back to HTML.
func (p *Printer) Messages(ids []string, bodies []message.Body) error {
	if p.format == FormatJSON {
		views := make([]messageView, 0, len(bodies))
		for i, b := range bodies {
			views = append(views, messageView{
				ID:          ids[i],
				Text:        b.TextBody,
				HTML:        b.HTMLBody,
				Attachments: b.Attachments,
			})
		}
		return p.json(views)
	}

	for i, b := range bodies {
		if len(bodies) > 1 {
			fmt.Fprintln(p.w, theme.HeaderStyle.Render("message "+ids[i]))
		}
		text := b.TextBody
		if text == "" {
			text = b.HTMLBody
		}
		fmt.Fprintln(p.w, strings.TrimRight(text, "\r\n"))
		for _, a := range b.Attachments {
			fmt.Fprintf(p.w, "%s %s (%s, %d bytes)\n",
				theme.AttachmentMarker(true), a.Filename, a.MIMEType, a.Size)
		}
	}
	return nil
}

// Done prints a confirmation message.
func (p *Printer) Done(msg string, args ...any) error {
	text := fmt.Sprintf(msg, args...)
	if p.format == FormatJSON {
		return p.json(map[string]string{"message": text})
	}
	_, err := fmt.Fprintln(p.w, text)
	return err
}
