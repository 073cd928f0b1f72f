package annotation

import (
	"fmt"
	"regexp"
	"strings"
)

// Block protection pulls whole sensitive elements out of the document
// before it is sent to the annotation service. Scripts and stylesheet
// links must never be rewritten, reformatted, or reasoned about by an
// external model; any mutation risks breaking executable behavior or
// stylesheet loading. Protection runs before reference tokenization so
// script and link internals are never tokenized either.

const blockTokenFormat = "<!--__PROTECTED_BLOCK_%04d__-->"

var (
	scriptBlockRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	linkBlockRe   = regexp.MustCompile(`(?is)<link\b[^>]*/?>`)

	blockTokenRe = regexp.MustCompile(`<!--__PROTECTED_BLOCK_\d{4,}__-->`)
)

// Protect replaces every <script>...</script> element and every <link>
// element with an HTML comment placeholder. The returned map keys are the
// placeholder comments and the values are the original blocks verbatim,
// whitespace included. Restore with Unprotect.
func Protect(html string) (string, map[string]string) {
	blocks := make(map[string]string)
	seq := 0

	replace := func(block string) string {
		token := fmt.Sprintf(blockTokenFormat, seq)
		seq++
		blocks[token] = block
		return token
	}

	out := scriptBlockRe.ReplaceAllStringFunc(html, replace)
	out = linkBlockRe.ReplaceAllStringFunc(out, replace)
	return out, blocks
}

// Unprotect substitutes each placeholder comment back to its original
// block. Unknown placeholders are left in place and reported.
func Unprotect(html string, blocks map[string]string) (string, error) {
	var missing []string
	out := blockTokenRe.ReplaceAllStringFunc(html, func(token string) string {
		block, ok := blocks[token]
		if !ok {
			missing = append(missing, token)
			return token
		}
		return block
	})
	if len(missing) > 0 {
		return out, fmt.Errorf("unprotect: %d block(s) missing from block map: %s",
			len(missing), strings.Join(missing, ", "))
	}
	return out, nil
}
