// Package assets mirrors references to trusted legacy and CDN origins into
// content-local storage so processed artifacts serve without reaching back
// to the old platform. Discovery and rewriting are string-level; downloads
// run concurrently with strict path validation. Mirroring is best-effort:
// no asset failure is ever fatal to the enclosing pipeline run.
package assets

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// Fetcher downloads one URL to a local path under the content root.
type Fetcher interface {
	Fetch(ctx context.Context, url, localPath string) error
}

// Mirror discovers, validates, downloads, and rewrites asset references.
type Mirror struct {
	fetcher       Fetcher
	legacyPrefix  string // e.g. "/system/"
	trustedOrigin string // e.g. "https://legacy.example.com"
	legacyRefRe   *regexp.Regexp
	workers       int
}

// NewMirror creates a mirror. trustedOrigin may be empty, which disables
// class-1 (legacy path) mirroring; protocol-relative CDN references are
// always handled.
func NewMirror(fetcher Fetcher, legacyPrefix, trustedOrigin string, workers int) *Mirror {
	if legacyPrefix == "" {
		legacyPrefix = "/system/"
	}
	if workers <= 0 {
		workers = 6
	}
	return &Mirror{
		fetcher:       fetcher,
		legacyPrefix:  legacyPrefix,
		trustedOrigin: strings.TrimRight(trustedOrigin, "/"),
		legacyRefRe:   regexp.MustCompile(`["'(]\s*(` + regexp.QuoteMeta(legacyPrefix) + `[^\s"'()<>]+)`),
		workers:       workers,
	}
}

// candidate is one discovered reference and its mirror plan.
type candidate struct {
	original  string // reference exactly as it appears in the HTML
	remoteURL string // where to download from
	localRel  string // content-relative destination path
}

var (
	// Protocol-relative CDN references: //host/path at the start of a
	// quoted attribute value or css url(). The leading delimiter match
	// keeps scheme-qualified URLs (https://host/...) out.
	cdnRefRe = regexp.MustCompile(`["'(=\s]//([a-zA-Z0-9.-]+\.[a-zA-Z]{2,})(/[^\s"'()<>]+)`)

	// Allowlist for legacy asset path characters after the prefix.
	legacyPathRe = regexp.MustCompile(`^[a-zA-Z0-9._/-]+$`)
)

// Process discovers asset references in html, downloads each accepted
// asset below contentRoot, and returns the HTML with successfully
// mirrored references rewritten to content-relative local paths.
// References whose download failed keep their original remote form.
func (m *Mirror) Process(ctx context.Context, html, contentRoot string) string {
	candidates := m.discover(html)
	if len(candidates) == 0 {
		return html
	}

	mirrored := m.fetchAll(ctx, candidates, contentRoot)

	// Rewrite longest originals first so a reference that is a prefix of
	// another is never clobbered by the shorter rewrite.
	sort.Slice(mirrored, func(i, j int) bool {
		return len(mirrored[i].original) > len(mirrored[j].original)
	})
	for _, c := range mirrored {
		html = rewriteDelimited(html, c.original, c.localRel)
	}
	return html
}

// rewriteDelimited replaces original with replacement only where original
// starts a reference (after a quote, paren, equals, or whitespace), so a
// path embedded in a longer scheme-qualified URL is left alone.
func rewriteDelimited(html, original, replacement string) string {
	re := regexp.MustCompile(`["'(=\s]` + regexp.QuoteMeta(original))
	return re.ReplaceAllStringFunc(html, func(m string) string {
		return m[:1] + replacement
	})
}

// discover finds legacy-prefix and protocol-relative references,
// deduplicated, with invalid legacy paths rejected up front.
func (m *Mirror) discover(html string) []candidate {
	seen := make(map[string]bool)
	var out []candidate

	if m.trustedOrigin != "" {
		for _, match := range m.legacyRefRe.FindAllStringSubmatch(html, -1) {
			path := match[1]
			if seen[path] {
				continue
			}
			seen[path] = true
			if err := m.validateLegacyPath(path); err != nil {
				logger.Warn("rejected legacy asset path", "path", path, "reason", err.Error())
				continue
			}
			out = append(out, candidate{
				original:  path,
				remoteURL: m.trustedOrigin + path,
				localRel:  strings.TrimPrefix(path, "/"),
			})
		}
	}

	for _, match := range cdnRefRe.FindAllStringSubmatch(html, -1) {
		host, path := match[1], match[2]
		full := "//" + host + path
		if seen[full] {
			continue
		}
		seen[full] = true
		out = append(out, candidate{
			original:  full,
			remoteURL: "https:" + full,
			localRel:  "cdn/" + host + path,
		})
	}
	return out
}

// validateLegacyPath enforces the class-1 rules: required prefix, no
// parent-directory traversal, restrictive character set. Containment
// under the content root is re-checked by the fetch layer against the
// resolved filesystem path.
func (m *Mirror) validateLegacyPath(path string) error {
	if !strings.HasPrefix(path, m.legacyPrefix) {
		return fmt.Errorf("missing required prefix %s", m.legacyPrefix)
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == ".." {
			return fmt.Errorf("parent-directory traversal segment")
		}
	}
	if !legacyPathRe.MatchString(path) {
		return fmt.Errorf("disallowed characters in path")
	}
	return nil
}

// fetchAll downloads candidates with a bounded worker pool and returns
// the subset that downloaded successfully. A stuck download blocks only
// its own worker; the per-asset timeout lives in the fetcher.
func (m *Mirror) fetchAll(ctx context.Context, candidates []candidate, contentRoot string) []candidate {
	type outcome struct {
		idx int
		ok  bool
	}
	jobs := make(chan int)
	results := make(chan outcome, len(candidates))

	var wg sync.WaitGroup
	workers := m.workers
	if workers > len(candidates) {
		workers = len(candidates)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := candidates[i]
				err := m.fetcher.Fetch(ctx, c.remoteURL, contentRoot+"/"+c.localRel)
				if err != nil {
					logger.Warn("asset download failed, keeping remote reference",
						"url", c.remoteURL, "error", err.Error())
					results <- outcome{idx: i, ok: false}
					continue
				}
				results <- outcome{idx: i, ok: true}
			}
		}()
	}
	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	var mirrored []candidate
	for res := range results {
		if res.ok {
			mirrored = append(mirrored, candidates[res.idx])
		}
	}
	return mirrored
}
