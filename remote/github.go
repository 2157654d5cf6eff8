// Package remote reads library sources straight from a GitHub repository so
// a release can be bundled without a local checkout.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"fortio.org/log"
	"github.com/google/go-github/v62/github"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ldemailly/onefile/bundle"
	"golang.org/x/oauth2"
)

// memEntries bounds the in-memory layer; a header only library rarely has
// more files than that.
const memEntries = 512

var _ bundle.Source = (*GitHub)(nil)

// isNotFoundError checks if an error is a GitHub API 404 Not Found error
func isNotFoundError(err error) bool {
	var ge *github.ErrorResponse
	if errors.As(err, &ge) && ge.Response != nil {
		// 403 is what private repos look like without a token.
		return ge.Response.StatusCode == http.StatusNotFound || ge.Response.StatusCode == http.StatusForbidden
	}
	return false
}

// HTTPClient returns an authenticated client when token is set and the
// default (rate limited) one otherwise.
func HTTPClient(ctx context.Context, token string) *http.Client {
	if token == "" {
		log.Warnf("GITHUB_TOKEN not set. Using unauthenticated access (may hit rate limits).")
		return http.DefaultClient
	}
	log.LogVf("Using authenticated GitHub API access.")
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return oauth2.NewClient(ctx, ts)
}

// ParseRepo splits "owner/repo".
func ParseRepo(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(s, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expected owner/repo", s)
	}
	return owner, repo, nil
}

// GitHub is a bundle.Source over the files of one repository at one ref.
// Lookups go through an in-memory LRU, then the on-disk Cache, then the API.
type GitHub struct {
	client *github.Client
	owner  string
	repo   string
	ref    string // empty means the default branch
	cache  *Cache
	mem    *lru.Cache[string, cachedContent]
}

func NewGitHub(client *github.Client, owner, repo, ref string, cache *Cache) (*GitHub, error) {
	mem, err := lru.New[string, cachedContent](memEntries)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = &Cache{}
	}
	return &GitHub{client: client, owner: owner, repo: repo, ref: ref, cache: cache, mem: mem}, nil
}

func (g *GitHub) String() string {
	if g.ref == "" {
		return g.owner + "/" + g.repo
	}
	return g.owner + "/" + g.repo + "@" + g.ref
}

// Exists reports whether name is a file in the repository. Only a not found
// answer from the API means missing; other API errors are returned.
func (g *GitHub) Exists(ctx context.Context, name string) (bool, error) {
	c, err := g.get(ctx, name)
	if err != nil {
		return false, fmt.Errorf("looking up %s in %s: %w", name, g, err)
	}
	return c.Found, nil
}

func (g *GitHub) ReadFile(ctx context.Context, name string) ([]byte, error) {
	c, err := g.get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !c.Found {
		return nil, fmt.Errorf("%s: %s: %w", g, name, fs.ErrNotExist)
	}
	return []byte(c.Content), nil
}

func (g *GitHub) get(ctx context.Context, name string) (cachedContent, error) {
	name = path.Clean(strings.TrimPrefix(name, "/"))
	if name == "." || name == ".." || strings.HasPrefix(name, "../") {
		// Root directory or outside of the repository.
		return cachedContent{}, nil
	}
	if c, ok := g.mem.Get(name); ok {
		return c, nil
	}
	keyParts := []string{"GetContents", g.owner, g.repo, name, g.ref}
	cacheKey := g.cache.key(keyParts...)
	var c cachedContent
	hit, readErr := g.cache.read(cacheKey, &c)
	if readErr != nil {
		// Not fatal, proceed as cache miss
		log.Errf("Error reading cache for %v: %v", keyParts, readErr)
	}
	if hit {
		log.LogVf("Cache hit for %s in %s, found=%v", name, g, c.Found)
		g.mem.Add(name, c)
		return c, nil
	}

	log.Infof("Cache miss for %s in %s, calling API", name, g)
	var opt *github.RepositoryContentGetOptions
	if g.ref != "" {
		opt = &github.RepositoryContentGetOptions{Ref: g.ref}
	}
	fileContent, dirContent, _, apiErr := g.client.Repositories.GetContents(ctx, g.owner, g.repo, name, opt)
	switch {
	case apiErr != nil && isNotFoundError(apiErr):
		log.LogVf("API reported Not Found for %s in %s", name, g)
		c = cachedContent{Found: false}
	case apiErr != nil:
		// Other errors might be transient, don't cache them.
		return cachedContent{}, apiErr
	case fileContent == nil:
		// Directories are not includable.
		log.LogVf("%s in %s is a directory (%d entries)", name, g, len(dirContent))
		c = cachedContent{Found: false}
	case fileContent.GetEncoding() == "none":
		// Over 1MB the contents API omits the content.
		content, err := g.download(ctx, name, opt)
		if err != nil {
			return cachedContent{}, err
		}
		c = cachedContent{Found: true, Content: content}
	default:
		content, err := fileContent.GetContent()
		if err != nil {
			return cachedContent{}, fmt.Errorf("decoding %s in %s: %w", name, g, err)
		}
		c = cachedContent{Found: true, Content: content}
	}
	if writeErr := g.cache.write(cacheKey, c); writeErr != nil {
		log.Errf("Error writing cache for %v: %v", keyParts, writeErr)
	}
	g.mem.Add(name, c)
	return c, nil
}

// download fetches a file too large for the contents API through its
// download URL.
func (g *GitHub) download(ctx context.Context, name string, opt *github.RepositoryContentGetOptions) (string, error) {
	log.Infof("%s in %s is too large for the contents API, downloading it", name, g)
	rc, _, err := g.client.Repositories.DownloadContents(ctx, g.owner, g.repo, name, opt)
	if err != nil {
		return "", fmt.Errorf("downloading large file %s in %s: %w", name, g, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("downloading large file %s in %s: %w", name, g, err)
	}
	return string(data), nil
}
