// onefile inlines the local includes of a header-only library into a single
// self-contained header, for places that only accept one source file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"fortio.org/cli"
	"fortio.org/log"
	"github.com/google/go-github/v62/github"
	"github.com/joho/godotenv"
	"github.com/ldemailly/onefile/bundle"
	"github.com/ldemailly/onefile/remote"
)

// Config is everything one run needs; main fills it from flags.
type Config struct {
	Entry       string // entry header, relative to Root (or the repo root with GitHub)
	Root        string // local source root, first include search base
	Output      string // relative to Root unless absolute
	GitHub      string // owner/repo, empty for local sources
	Ref         string
	Token       string
	UseCache    bool
	ClearCache  bool
	CacheDir    string // empty means remote.DefaultCacheDir()
	Dedupe      bool
	DotFile     string // relative to Root unless absolute
	LeftToRight bool
	Tree        bool
	Sum         bool
}

func main() {
	root := flag.String("C", ".", "Root `directory` of the sources, the first include search base")
	output := flag.String("o", "combined.h", "Output `file`, relative to -C unless absolute")
	gh := flag.String("github", "", "Read sources from this GitHub `owner/repo` instead of the local disk")
	ref := flag.String("ref", "", "Git `ref` to read with -github (default branch if empty)")
	noCache := flag.Bool("no-cache", false, "Disable the on-disk cache of GitHub lookups")
	clearCache := flag.Bool("clear-cache", false, "Clear the on-disk cache of GitHub lookups before running")
	dedupe := flag.Bool("dedupe", false, "Inline each file only the first time it is included")
	dot := flag.String("dot", "", "Also write the include graph in DOT format to this `file`, relative to -C unless absolute")
	left2Right := flag.Bool("left2right", false, "Use left to right rank direction in the DOT output")
	tree := flag.Bool("tree", false, "Print the include tree to stdout")
	sum := flag.Bool("sum", false, "Log the h1: fingerprint of all the files that were inlined")
	cli.ArgsHelp = "entry.h"
	cli.MinArgs = 1
	cli.MaxArgs = 1
	cli.Main()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("Error loading .env: %v", err)
	}
	cfg := Config{
		Entry:       flag.Arg(0),
		Root:        *root,
		Output:      *output,
		GitHub:      *gh,
		Ref:         *ref,
		Token:       os.Getenv("GITHUB_TOKEN"),
		UseCache:    !*noCache,
		ClearCache:  *clearCache,
		Dedupe:      *dedupe,
		DotFile:     *dot,
		LeftToRight: *left2Right,
		Tree:        *tree,
		Sum:         *sum,
	}
	if err := Run(context.Background(), cfg); err != nil {
		log.Errf("%v", err)
		os.Exit(1)
	}
}

// Run expands cfg.Entry and writes the result. Nothing is written unless the
// whole expansion succeeded. Failures of the optional reports are logged and
// do not fail the run.
func Run(ctx context.Context, cfg Config) error {
	src, err := newSource(ctx, cfg)
	if err != nil {
		return err
	}
	b := bundle.New(src, bundle.Options{Dedupe: cfg.Dedupe})
	res, err := b.Expand(ctx, cfg.Entry)
	if err != nil {
		var nf *bundle.HeaderNotFoundError
		if errors.As(err, &nf) {
			log.LogVf("%s:%d: tried %v", nf.Includer, nf.Line, nf.Candidates)
		}
		return err
	}
	out := underRoot(cfg.Root, cfg.Output)
	if err := writeFileAtomic(out, []byte(res)); err != nil {
		return err
	}
	log.Infof("Wrote %s: %d bytes from %d files", out, len(res), len(b.Visited()))
	if err := report(ctx, cfg, src, b); err != nil {
		log.Warnf("Bundle written but report failed: %v", err)
	}
	return nil
}

// underRoot resolves a relative output path against the source root.
func underRoot(root, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(root, name)
}

func newSource(ctx context.Context, cfg Config) (bundle.Source, error) {
	if cfg.GitHub == "" {
		return bundle.Dir(cfg.Root), nil
	}
	owner, repo, err := remote.ParseRepo(cfg.GitHub)
	if err != nil {
		return nil, err
	}
	dir := cfg.CacheDir
	if dir == "" {
		if dir, err = remote.DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	var cache *remote.Cache
	if cfg.ClearCache {
		if cache, err = remote.NewCache(dir, false); err != nil {
			return nil, err
		}
		if err = cache.Clear(); err != nil {
			return nil, fmt.Errorf("clearing cache: %w", err)
		}
	}
	if cache, err = remote.NewCache(dir, cfg.UseCache); err != nil {
		return nil, fmt.Errorf("setting up cache: %w", err)
	}
	client := github.NewClient(remote.HTTPClient(ctx, cfg.Token))
	return remote.NewGitHub(client, owner, repo, cfg.Ref, cache)
}

// report produces the optional side outputs once the bundle is written.
func report(ctx context.Context, cfg Config, src bundle.Source, b *bundle.Bundler) error {
	g := b.Graph()
	if cfg.Tree {
		if err := g.WriteTree(os.Stdout, g.Nodes()[0].Path); err != nil {
			return err
		}
	}
	if cfg.DotFile != "" {
		dotFile := underRoot(cfg.Root, cfg.DotFile)
		f, err := os.Create(dotFile)
		if err != nil {
			return err
		}
		if err = g.WriteDot(f, cfg.LeftToRight); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", dotFile, err)
		}
		if err = f.Close(); err != nil {
			return err
		}
		log.Infof("Wrote include graph to %s", dotFile)
	}
	if cfg.Sum {
		sum, err := bundle.Sum(ctx, src, b.Visited())
		if err != nil {
			return fmt.Errorf("computing fingerprint: %w", err)
		}
		log.Infof("Fingerprint %s", sum)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to name and renames it in
// place, so name is either untouched or complete.
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
