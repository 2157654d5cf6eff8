package graph

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"fortio.org/log"
)

// --- Colors ---
var (
	entryColor  = "lightblue"
	headerColor = "lightgrey"
	cycleColor  = "red" // Color for node border and edges in cycles
)

// Node is one file visited while expanding.
type Node struct {
	Path       string
	Entry      bool // the file expansion started from
	partOfLoop bool
}

// Edge is one local include directive: From includes To.
type Edge struct {
	From *Node // never nil.
	To   *Node
	// The header name as written in the directive and its 1-based line.
	Header string
	Line   int
}

// Cycle is a chain of includes that leads back to its first file.
type Cycle struct {
	Nodes []*Node
}

// Graph is the include graph of one expansion. Nodes and edges keep the
// order in which they were discovered, which is the depth-first pre-order
// of the expansion.
type Graph struct {
	nodes  map[string]*Node // path -> Node
	order  []*Node          // discovery order
	edges  []Edge
	cycles []Cycle // Cycles as they are discovered
}

func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode returns the node for path, creating it if needed.
func (g *Graph) AddNode(path string) *Node {
	if n, ok := g.nodes[path]; ok {
		return n
	}
	n := &Node{Path: path, Entry: len(g.order) == 0}
	g.nodes[path] = n
	g.order = append(g.order, n)
	return n
}

func (g *Graph) Node(path string) *Node {
	return g.nodes[path]
}

func (g *Graph) AddEdge(from, to, header string, line int) {
	g.edges = append(g.edges, Edge{From: g.AddNode(from), To: g.AddNode(to), Header: header, Line: line})
}

// AddCycle records a chain of paths whose last element repeats an earlier one.
func (g *Graph) AddCycle(chain []string) {
	c := Cycle{Nodes: make([]*Node, 0, len(chain))}
	for _, p := range chain {
		n := g.AddNode(p)
		n.partOfLoop = true
		c.Nodes = append(c.Nodes, n)
	}
	log.LogVf("Recorded include cycle of %d files", len(chain))
	g.cycles = append(g.cycles, c)
}

// Nodes returns the nodes in discovery order.
func (g *Graph) Nodes() []*Node { return g.order }

func (g *Graph) Edges() []Edge { return g.edges }

func (g *Graph) Cycles() []Cycle { return g.cycles }

// InCycle reports whether path was part of a recorded cycle.
func (g *Graph) InCycle(path string) bool {
	n := g.nodes[path]
	return n != nil && n.partOfLoop
}

// WriteDot writes the graph in graphviz DOT format. Nodes are sorted by path
// so the output is stable.
func (g *Graph) WriteDot(w io.Writer, leftToRight bool) error {
	var b strings.Builder
	b.WriteString("digraph includes {\n")
	rankDir := "TB"
	if leftToRight {
		rankDir = "LR"
	}
	fmt.Fprintf(&b, "  rankdir=\"%s\";\n", rankDir)
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")

	b.WriteString("\n  // Node Definitions\n")
	sorted := make([]*Node, len(g.order))
	copy(sorted, g.order)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, n := range sorted {
		color := headerColor
		if n.Entry {
			color = entryColor
		}
		attrs := []string{
			fmt.Sprintf("label=\"%s\"", escape(n.Path)),
			fmt.Sprintf("fillcolor=\"%s\"", color),
		}
		if n.partOfLoop {
			attrs = append(attrs, fmt.Sprintf("color=\"%s\"", cycleColor), "penwidth=2")
		}
		fmt.Fprintf(&b, "  \"%s\" [%s];\n", escape(n.Path), strings.Join(attrs, ", "))
	}

	b.WriteString("\n  // Edges (Includes)\n")
	for _, e := range g.edges {
		attrs := []string{fmt.Sprintf("label=\"%s:%d\"", escape(e.Header), e.Line)}
		if e.From.partOfLoop && e.To.partOfLoop {
			attrs = append(attrs, fmt.Sprintf("color=\"%s\"", cycleColor), "penwidth=1.5")
		}
		fmt.Fprintf(&b, "  \"%s\" -> \"%s\" [%s];\n", escape(e.From.Path), escape(e.To.Path), strings.Join(attrs, ", "))
	}
	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteTree writes an indented depth-first listing starting at root. A file
// already listed is printed again with a "(seen)" marker but not descended
// into, so cycles terminate.
func (g *Graph) WriteTree(w io.Writer, root string) error {
	children := make(map[*Node][]*Node)
	for _, e := range g.edges {
		children[e.From] = append(children[e.From], e.To)
	}
	start := g.nodes[root]
	if start == nil {
		return fmt.Errorf("no such node %q", root)
	}
	var b strings.Builder
	seen := make(map[*Node]bool)
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.Path)
		if seen[n] {
			b.WriteString(" (seen)\n")
			return
		}
		b.WriteString("\n")
		seen[n] = true
		for _, c := range children[n] {
			walk(c, depth+1)
		}
	}
	walk(start, 0)
	_, err := io.WriteString(w, b.String())
	return err
}

// escape only handles double quotes, which is all DOT ids and labels need here.
func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}
