// File: internal/markdown/parse.go

// Package markdown parses the small markdown dialect the bridge emits into
// an explicit node tree and renders it for the terminal. Input is never
// interpreted as markup: every structural element is constructed here and
// all literal text stays text.
package markdown

import (
	"regexp"
	"strings"
)

// NodeKind identifies a parsed node.
type NodeKind string

const (
	NodeText      NodeKind = "text"
	NodeCodeBlock NodeKind = "code_block"
	NodeHeading   NodeKind = "heading"
	NodeList      NodeKind = "list"
	NodeListItem  NodeKind = "list_item"
	NodeParagraph NodeKind = "paragraph"
	NodeCode      NodeKind = "code"
	NodeLink      NodeKind = "link"
	NodeBold      NodeKind = "bold"
)

// Node is one element of the parsed tree. Text carries the literal content
// for leaf kinds (and the href for links); Lang and Level apply to code
// blocks and headings respectively.
type Node struct {
	Kind     NodeKind
	Text     string
	Lang     string
	Level    int
	Children []Node
}

// Document is the parse result. Empty input yields an empty Document.
type Document struct {
	Children []Node
}

var (
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	urlRe        = regexp.MustCompile(`https?://[^\s<>)\]]+`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
)

// Parse builds the node tree. Constructs are recognized in fixed priority:
// fenced code blocks first, then line-oriented headings and list runs, then
// inline spans inside remaining text.
func Parse(input string) Document {
	var doc Document
	if input == "" {
		return doc
	}

	lines := strings.Split(input, "\n")
	for i := 0; i < len(lines); {
		line := lines[i]

		if strings.HasPrefix(line, "```") {
			lang := strings.TrimSpace(strings.TrimPrefix(line, "```"))
			closing := -1
			for j := i + 1; j < len(lines); j++ {
				if strings.HasPrefix(lines[j], "```") {
					closing = j
					break
				}
			}
			if closing == -1 {
				// Unterminated fence: the remainder degrades to one plain
				// text segment rather than an error.
				rest := strings.Join(lines[i+1:], "\n")
				if rest != "" {
					doc.Children = append(doc.Children, Node{Kind: NodeText, Text: rest})
				}
				return doc
			}
			doc.Children = append(doc.Children, Node{
				Kind: NodeCodeBlock,
				Lang: lang,
				Text: strings.Join(lines[i+1:closing], "\n"),
			})
			i = closing + 1
			continue
		}

		if strings.HasPrefix(line, "### ") {
			doc.Children = append(doc.Children, Node{Kind: NodeHeading, Level: 3, Text: line[len("### "):]})
			i++
			continue
		}
		if strings.HasPrefix(line, "## ") {
			doc.Children = append(doc.Children, Node{Kind: NodeHeading, Level: 2, Text: line[len("## "):]})
			i++
			continue
		}

		if isListLine(line) {
			list := Node{Kind: NodeList}
			for i < len(lines) && isListLine(lines[i]) {
				item := Node{Kind: NodeListItem, Children: parseInline(lines[i][2:])}
				list.Children = append(list.Children, item)
				i++
			}
			doc.Children = append(doc.Children, list)
			continue
		}

		doc.Children = append(doc.Children, Node{Kind: NodeParagraph, Children: parseInline(line)})
		i++
	}
	return doc
}

func isListLine(line string) bool {
	return strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ")
}

// parseInline scans text for inline code, bare URLs, and bold spans,
// emitting the earliest match each round and recursing on the remainder.
// Each round strictly shrinks the input, so the loop terminates.
func parseInline(text string) []Node {
	var nodes []Node
	for text != "" {
		kind, loc := earliestInline(text)
		if loc == nil {
			nodes = append(nodes, Node{Kind: NodeText, Text: text})
			break
		}
		if loc[0] > 0 {
			nodes = append(nodes, Node{Kind: NodeText, Text: text[:loc[0]]})
		}
		match := text[loc[0]:loc[1]]
		switch kind {
		case NodeCode:
			nodes = append(nodes, Node{Kind: NodeCode, Text: strings.Trim(match, "`")})
		case NodeLink:
			nodes = append(nodes, Node{Kind: NodeLink, Text: match})
		case NodeBold:
			nodes = append(nodes, Node{Kind: NodeBold, Text: strings.TrimSuffix(strings.TrimPrefix(match, "**"), "**")})
		}
		text = text[loc[1]:]
	}
	return nodes
}

// earliestInline returns the kind and location of the earliest-starting
// inline match, or a nil location when nothing matches. On equal start
// positions inline code wins over URLs, which win over bold.
func earliestInline(text string) (NodeKind, []int) {
	var (
		bestKind NodeKind
		best     []int
	)
	consider := func(kind NodeKind, loc []int) {
		if loc == nil {
			return
		}
		if best == nil || loc[0] < best[0] {
			bestKind = kind
			best = loc
		}
	}
	consider(NodeCode, inlineCodeRe.FindStringIndex(text))
	consider(NodeLink, urlRe.FindStringIndex(text))
	consider(NodeBold, boldRe.FindStringIndex(text))
	return bestKind, best
}
