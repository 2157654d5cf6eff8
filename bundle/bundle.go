// Package bundle inlines the local includes of a header-only library into a
// single text, depth first, in the order the directives appear.
//
// Only two directives are recognized, and only at the start of a line:
// `#pragma once` lines are dropped and `#include "name"` lines are replaced by
// the expansion of the named file. Everything else, angle-bracket includes
// included, is copied verbatim.
package bundle

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"fortio.org/log"
	"github.com/ldemailly/onefile/graph"
)

const (
	PragmaOnce    = "#pragma once"
	IncludePrefix = "#include \""
)

// Options tune an expansion. The zero value inlines every include as many
// times as it is encountered.
type Options struct {
	// Dedupe inlines each file only the first time it is included; later
	// includes of the same file expand to nothing.
	Dedupe bool
}

// Bundler expands one entry file. It is not safe for concurrent use.
type Bundler struct {
	src   Source
	opts  Options
	graph *graph.Graph

	stack   []string        // files being expanded, outermost first
	active  map[string]bool // set view of stack
	done    map[string]bool // files fully expanded at least once
	visited []string        // distinct files in first-visit order
}

// New returns a Bundler reading from src. The root of src is the first
// search base of every include.
func New(src Source, opts Options) *Bundler {
	return &Bundler{
		src:    src,
		opts:   opts,
		graph:  graph.New(),
		active: make(map[string]bool),
		done:   make(map[string]bool),
	}
}

// Expand returns the text of name with all local includes inlined and all
// pragma once lines removed. Errors from any depth are returned as is:
// *HeaderNotFoundError, *CyclicIncludeError or a wrapped lookup or read
// error from the Source.
func (b *Bundler) Expand(ctx context.Context, name string) (string, error) {
	name = cleanName(name)
	b.graph.AddNode(name)
	return b.expand(ctx, name)
}

// Graph returns the include graph recorded so far.
func (b *Bundler) Graph() *graph.Graph { return b.graph }

// Visited returns the distinct files read so far, in first-visit order.
func (b *Bundler) Visited() []string { return b.visited }

func (b *Bundler) expand(ctx context.Context, name string) (string, error) {
	if b.active[name] {
		chain := b.cycleFrom(name)
		b.graph.AddCycle(chain)
		return "", &CyclicIncludeError{Chain: chain}
	}
	if b.opts.Dedupe && b.done[name] {
		log.LogVf("Skipping %s, already inlined", name)
		return "", nil
	}
	data, err := b.src.ReadFile(ctx, name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	if !slices.Contains(b.visited, name) {
		b.visited = append(b.visited, name)
	}
	log.LogVf("Expanding %s (depth %d, %d bytes)", name, len(b.stack), len(data))

	b.stack = append(b.stack, name)
	b.active[name] = true
	defer func() {
		b.stack = b.stack[:len(b.stack)-1]
		delete(b.active, name)
	}()

	var out strings.Builder
	r := bufio.NewReader(bytes.NewReader(data))
	lineNo := 0
	for {
		line, rerr := r.ReadString('\n')
		if line != "" {
			lineNo++
			if err := b.expandLine(ctx, &out, name, lineNo, line); err != nil {
				return "", err
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return "", fmt.Errorf("reading %s: %w", name, rerr)
		}
	}
	b.done[name] = true
	return out.String(), nil
}

func (b *Bundler) expandLine(ctx context.Context, out *strings.Builder, name string, lineNo int, line string) error {
	switch {
	case strings.HasPrefix(line, PragmaOnce):
		return nil
	case strings.HasPrefix(line, IncludePrefix):
		header := HeaderName(line)
		candidates := SearchPath(name, header)
		for _, c := range candidates {
			found, err := b.src.Exists(ctx, c)
			if err != nil {
				// Only a missing file moves on to the next candidate.
				return fmt.Errorf("%s:%d: looking up %s: %w", name, lineNo, c, err)
			}
			if !found {
				continue
			}
			b.graph.AddEdge(name, c, header, lineNo)
			sub, err := b.expand(ctx, c)
			if err != nil {
				return err
			}
			out.WriteString(sub)
			out.WriteByte('\n')
			return nil
		}
		return &HeaderNotFoundError{Header: header, Includer: name, Line: lineNo, Candidates: candidates}
	default:
		out.WriteString(line)
		return nil
	}
}

// cycleFrom returns the part of the active stack starting at name, with name
// appended again to close the loop.
func (b *Bundler) cycleFrom(name string) []string {
	i := len(b.stack) - 1
	for i > 0 && b.stack[i] != name {
		i--
	}
	chain := make([]string, 0, len(b.stack)-i+1)
	chain = append(chain, b.stack[i:]...)
	return append(chain, name)
}

// HeaderName returns the text between the first and second double quote of
// line. Without a closing quote it is the rest of the line minus its
// terminator.
func HeaderName(line string) string {
	i := strings.IndexByte(line, '"')
	if i < 0 {
		return ""
	}
	rest := line[i+1:]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		return rest[:j]
	}
	return strings.TrimRight(rest, "\r\n")
}

// SearchPath returns the candidate paths for header included from includer,
// in the order they are tried: the source root, then the directory of the
// including file. The second candidate is omitted when it is the same path.
func SearchPath(includer, header string) []string {
	first := path.Join(".", header)
	second := path.Join(path.Dir(includer), header)
	if second == first {
		return []string{first}
	}
	return []string{first, second}
}

func cleanName(name string) string {
	return path.Clean(filepath.ToSlash(name))
}
