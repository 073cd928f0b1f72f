package annotation

import (
	"fmt"
	"regexp"
	"strings"
)

// refTokenFormat produces tokens like __ASSET_REF_0007__. Zero padding keeps
// tokens fixed-width so a later token is never a prefix of an earlier one.
const refTokenFormat = "__ASSET_REF_%04d__"

var (
	// URL-bearing attributes whose values must never reach the annotation
	// service. Group 2 is a double-quoted value, group 3 single-quoted,
	// group 4 unquoted (legal HTML, common in third-party email markup).
	urlAttrRe = regexp.MustCompile(`(?i)(src|href|srcset|poster|data-src|data-href|action|background)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"'=<>` + "`" + `]+))`)

	// CSS url(...) references, both in style attributes and <style> blocks.
	cssURLRe = regexp.MustCompile(`(?i)url\(\s*['"]?([^'")]+?)['"]?\s*\)`)

	refTokenRe = regexp.MustCompile(`__ASSET_REF_\d{4,}__`)
)

// Tokenize replaces every URL-bearing attribute value and CSS url()
// reference in html with an opaque token, returning the tokenized document
// and a map from token to original value. Only the value itself is touched;
// all surrounding bytes are preserved so RestoreRefs reproduces the input
// exactly. Values that are already tokens, empty, or use the data:,
// javascript:, or mailto: schemes pass through unchanged.
func Tokenize(html string) (string, map[string]string) {
	refs := make(map[string]string)
	seq := 0

	next := func(original string) string {
		token := fmt.Sprintf(refTokenFormat, seq)
		seq++
		refs[token] = original
		return token
	}

	out := replaceValueSpans(html, urlAttrRe, []int{2, 3, 4}, next)
	out = replaceValueSpans(out, cssURLRe, []int{1}, next)
	return out, refs
}

// replaceValueSpans rewrites only the captured value span of each match,
// leaving every other byte of the document intact. groups lists the capture
// group indexes to try in order; the first one that participated in the
// match is replaced.
func replaceValueSpans(html string, re *regexp.Regexp, groups []int, next func(string) string) string {
	matches := re.FindAllStringSubmatchIndex(html, -1)
	if matches == nil {
		return html
	}

	var b strings.Builder
	b.Grow(len(html))
	last := 0
	for _, m := range matches {
		start, end := -1, -1
		for _, g := range groups {
			if m[2*g] >= 0 {
				start, end = m[2*g], m[2*g+1]
				break
			}
		}
		if start < 0 {
			continue
		}
		value := html[start:end]
		if skipRef(value) {
			continue
		}
		b.WriteString(html[last:start])
		b.WriteString(next(value))
		last = end
	}
	b.WriteString(html[last:])
	return b.String()
}

// RestoreRefs substitutes every token in html back to its original value.
// The substitution is total (an error is returned if a token in the
// document is missing from refs) and idempotent: restoring an already
// restored document is a no-op.
func RestoreRefs(html string, refs map[string]string) (string, error) {
	var missing []string
	out := refTokenRe.ReplaceAllStringFunc(html, func(token string) string {
		original, ok := refs[token]
		if !ok {
			missing = append(missing, token)
			return token
		}
		return original
	})
	if len(missing) > 0 {
		return out, fmt.Errorf("restore refs: %d token(s) missing from reference map: %s",
			len(missing), strings.Join(missing, ", "))
	}
	return out, nil
}

// skipRef reports whether a reference value must pass through untokenized:
// already-issued tokens and inert or executable inline schemes.
func skipRef(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	if refTokenRe.MatchString(v) {
		return true
	}
	lower := strings.ToLower(v)
	return strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:")
}
