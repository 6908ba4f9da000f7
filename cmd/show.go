package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/agentic-research/filetree/internal/graph"
)

var (
	dirStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06B6D4"))
	fileStyle      = lipgloss.NewStyle()
	syntheticStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	uncertainStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
)

func newShowCmd(opts *options) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Build the tree and print it, or the subtree at path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := buildTree(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			g := res.Store()
			w := cmd.OutOrStdout()

			if len(args) == 0 {
				roots, _ := g.ListChildren("")
				for _, id := range roots {
					renderTree(w, g, id, "", "", depth)
				}
				return nil
			}
			n, err := g.Lookup(graph.Parse(args[0]))
			if err != nil {
				return fmt.Errorf("no node at %s", args[0])
			}
			renderTree(w, g, n.ID, "", "", depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "levels to print below each root (0 = all)")
	return cmd
}

// renderTree prints id and its descendants with box-drawing guides.
func renderTree(w io.Writer, g graph.Graph, id, prefix, branch string, depth int) {
	n, err := g.GetNode(id)
	if err != nil {
		return
	}
	fmt.Fprintln(w, prefix+branch+label(n))

	if depth == 1 || !n.IsDir() {
		return
	}
	children, _ := g.ListChildren(id)
	childPrefix := prefix
	switch branch {
	case "├── ":
		childPrefix += "│   "
	case "└── ":
		childPrefix += "    "
	}
	next := depth - 1
	if depth == 0 {
		next = 0
	}
	for i, c := range children {
		b := "├── "
		if i == len(children)-1 {
			b = "└── "
		}
		renderTree(w, g, c, childPrefix, b, next)
	}
}

func label(n *graph.Node) string {
	var b strings.Builder
	switch {
	case n.IsDir() && n.Synthetic:
		b.WriteString(syntheticStyle.Render(n.Name + "/"))
	case n.IsDir():
		b.WriteString(dirStyle.Render(n.Name + "/"))
	default:
		b.WriteString(fileStyle.Render(n.Name))
	}
	if n.Size != nil {
		b.WriteString(" " + mutedStyle.Render(humanSize(*n.Size)))
	}
	if n.Uncertain {
		b.WriteString(" " + uncertainStyle.Render("(?)"))
	}
	return b.String()
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
