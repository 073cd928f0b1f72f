package annotation

import "strings"

// safeClosingTags are element boundaries preferred for chunk cuts, in the
// order they are searched. Cutting immediately after one of these keeps
// each chunk structurally self-contained enough for independent annotation.
var safeClosingTags = []string{
	"</div>", "</section>", "</form>", "</article>", "</main>", "</p>",
	"</li>", "</ul>", "</ol>", "</table>", "</tr>", "</td>", "</th>",
	"</header>", "</footer>", "</nav>", "</aside>",
}

// Split divides html into an ordered sequence of substrings, each at most
// max bytes when a closing-tag boundary is available inside the window.
// Concatenating the chunks always reconstructs the input exactly.
//
// Cut policy per window: last preferred closing tag, else last closing tag
// of any name, else the raw byte boundary (structure may break; the chunk
// is still emitted rather than dropped).
func Split(html string, max int) []string {
	if max <= 0 || len(html) <= max {
		return []string{html}
	}

	var chunks []string
	rest := html
	for len(rest) > max {
		window := rest[:max]
		cut := lastSafeBoundary(window)
		if cut <= 0 {
			cut = lastClosingTag(window)
		}
		if cut <= 0 {
			cut = max
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if len(rest) > 0 {
		chunks = append(chunks, rest)
	}
	return chunks
}

// lastSafeBoundary returns the index just past the last preferred closing
// tag in window, or 0 if none is present. Tag search is case-insensitive
// via an ASCII-only fold: full Unicode lowercasing can change byte length,
// which would make the found index invalid in the original window.
func lastSafeBoundary(window string) int {
	best := 0
	lower := lowerASCII(window)
	for _, tag := range safeClosingTags {
		if idx := strings.LastIndex(lower, tag); idx >= 0 && idx+len(tag) > best {
			best = idx + len(tag)
		}
	}
	return best
}

// lowerASCII lowercases only the bytes A-Z, preserving byte length.
func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

// lastClosingTag returns the index just past the last closing tag of any
// name in window, or 0 if the window contains no closing tag.
func lastClosingTag(window string) int {
	idx := strings.LastIndex(window, "</")
	if idx < 0 {
		return 0
	}
	end := strings.Index(window[idx:], ">")
	if end < 0 {
		return 0
	}
	return idx + end + 1
}
