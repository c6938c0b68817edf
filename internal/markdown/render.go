// File: internal/markdown/render.go
package markdown

import (
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
)

// wrapBreakpoints are the characters ansi.Wrap may break long words at.
const wrapBreakpoints = " ,.;-+|"

// Renderer turns a parsed Document into styled terminal text.
type Renderer struct {
	width int

	text       lipgloss.Style
	heading    lipgloss.Style
	subheading lipgloss.Style
	inlineCode lipgloss.Style
	link       lipgloss.Style
	bold       lipgloss.Style
	bullet     lipgloss.Style
	codeFaint  lipgloss.Style
}

// NewRenderer builds a Renderer for the given content width. The color
// profile is forced to ANSI256: output always targets the TUI, and
// auto-detection would strip color under tests with no TTY.
func NewRenderer(width int) *Renderer {
	if width < 10 {
		width = 10
	}
	lip := lipgloss.NewRenderer(io.Discard, termenv.WithProfile(termenv.ANSI256))
	lip.SetColorProfile(termenv.ANSI256)

	return &Renderer{
		width:      width,
		text:       lip.NewStyle(),
		heading:    lip.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		subheading: lip.NewStyle().Bold(true),
		inlineCode: lip.NewStyle().Foreground(lipgloss.Color("203")),
		link:       lip.NewStyle().Foreground(lipgloss.Color("39")).Underline(true),
		bold:       lip.NewStyle().Bold(true),
		bullet:     lip.NewStyle().Foreground(lipgloss.Color("245")),
		codeFaint:  lip.NewStyle().Foreground(lipgloss.Color("246")),
	}
}

// Render parses input and renders it in one step.
func (r *Renderer) Render(input string) string {
	return r.RenderDocument(Parse(input))
}

// RenderDocument renders a parsed tree. Blocks are separated by single
// newlines; the caller decides paragraph spacing within the feed.
func (r *Renderer) RenderDocument(doc Document) string {
	var out strings.Builder
	for _, node := range doc.Children {
		switch node.Kind {
		case NodeCodeBlock:
			out.WriteString(r.renderCodeBlock(node))
			out.WriteString("\n")
		case NodeHeading:
			style := r.heading
			if node.Level >= 3 {
				style = r.subheading
			}
			out.WriteString(ansi.Wrap(style.Render(node.Text), r.width, wrapBreakpoints))
			out.WriteString("\n")
		case NodeList:
			for _, item := range node.Children {
				line := r.bullet.Render("• ") + r.renderInline(item.Children)
				out.WriteString(ansi.Wrap(line, r.width, wrapBreakpoints))
				out.WriteString("\n")
			}
		case NodeText:
			out.WriteString(ansi.Wrap(r.text.Render(node.Text), r.width, wrapBreakpoints))
			out.WriteString("\n")
		case NodeParagraph:
			out.WriteString(ansi.Wrap(r.renderInline(node.Children), r.width, wrapBreakpoints))
			out.WriteString("\n")
		}
	}
	return strings.TrimRight(out.String(), "\n")
}

func (r *Renderer) renderInline(nodes []Node) string {
	var out strings.Builder
	for _, node := range nodes {
		switch node.Kind {
		case NodeText:
			out.WriteString(r.text.Render(node.Text))
		case NodeCode:
			out.WriteString(r.inlineCode.Render(node.Text))
		case NodeLink:
			out.WriteString(r.link.Render(node.Text))
		case NodeBold:
			out.WriteString(r.bold.Render(node.Text))
		}
	}
	return out.String()
}

// renderCodeBlock syntax-highlights fenced code with chroma when a language
// tag is present, degrading to faint plain text on unknown languages.
func (r *Renderer) renderCodeBlock(node Node) string {
	if node.Lang != "" {
		var buf strings.Builder
		if err := quick.Highlight(&buf, node.Text, node.Lang, "terminal256", "monokai"); err == nil {
			return strings.TrimRight(buf.String(), "\n")
		}
	}
	return r.codeFaint.Render(node.Text)
}
