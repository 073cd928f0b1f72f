package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sentinel-secure/awareness-platform/internal/pkg/httpretry"
)

// HTTPFetcher downloads assets with bounded timeout and limited retries,
// writing only below the configured root. It is safe for concurrent use.
type HTTPFetcher struct {
	client  httpretry.HTTPDoer
	root    string // absolute content-local root; nothing is written outside it
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher rooted at root. retries is the number
// of attempts after the first; timeout applies per asset.
func NewHTTPFetcher(root string, timeout time.Duration, retries int) (*HTTPFetcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve asset root: %w", err)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client:  httpretry.NewRetryClient(&http.Client{Timeout: timeout}, retries),
		root:    abs,
		timeout: timeout,
	}, nil
}

// Fetch downloads url into localPath. The destination is resolved (walking
// up to the nearest existing ancestor for symlink evaluation) and must stay
// within the fetcher's root; anything else is rejected before any network
// traffic.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, localPath string) error {
	dest, err := f.containedPath(localPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}
	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write asset: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close asset: %w", err)
	}
	return os.Rename(tmp, dest)
}

// containedPath cleans localPath and verifies it resolves inside the root,
// evaluating symlinks through the nearest existing ancestor so a planted
// link cannot escape.
func (f *HTTPFetcher) containedPath(localPath string) (string, error) {
	clean := filepath.Clean(localPath)
	if !filepath.IsAbs(clean) {
		clean = filepath.Join(f.root, clean)
	}

	resolved, err := resolveExistingAncestor(clean)
	if err != nil {
		return "", fmt.Errorf("resolve destination: %w", err)
	}
	rootResolved, err := resolveExistingAncestor(f.root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	if resolved != rootResolved && !strings.HasPrefix(resolved, rootResolved+string(filepath.Separator)) {
		return "", fmt.Errorf("destination %s escapes content root", localPath)
	}
	return clean, nil
}

// resolveExistingAncestor walks up from path to the nearest existing
// directory, evaluates its symlinks, and rejoins the non-existing suffix.
func resolveExistingAncestor(path string) (string, error) {
	var suffix []string
	cur := path
	for {
		if _, err := os.Stat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, suffix...)...), nil
}
