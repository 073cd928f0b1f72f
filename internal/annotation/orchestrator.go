package annotation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/sentinel-secure/awareness-platform/internal/domain"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// Mode selects the annotation task and its closed tag vocabulary.
type Mode string

const (
	// ModeEducational marks interactive elements in training content with
	// data-sat-tag attributes.
	ModeEducational Mode = "educational-tagging"
	// ModePhishingCue marks phishing indicators in simulated emails with
	// data-phish-cue attributes and grades difficulty 1-3.
	ModePhishingCue Mode = "phishing-cue-tagging"
)

// DefaultDifficulty is assumed when the service omits the difficulty line.
const DefaultDifficulty = 2

// truncationRatio is the heuristic floor for output size; responses below
// it are flagged as possibly truncated but still accepted.
const truncationRatio = 0.8

// Result is the outcome of annotating one document.
type Result struct {
	HTML       string
	Tags       []string
	Difficulty int
	// Partial is set when one or more chunks failed annotation and were
	// passed through unmodified.
	Partial     bool
	Substituted int
	// Skipped is set when the document exceeded the size ceiling and was
	// returned untouched with no tags.
	Skipped bool
}

// Waiter gates calls to the external service; see pkg/ratelimit.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Orchestrator drives annotation calls to the external service, cleans up
// responses, and aggregates discovered tags. It holds no per-document
// state and is safe for concurrent use.
type Orchestrator struct {
	invoker Invoker
	limiter Waiter // optional

	chunkBytes int
	maxDocs    int // document size ceiling in bytes
	workers    int
}

// NewOrchestrator creates an orchestrator. limiter may be nil when no rate
// limiting is configured.
func NewOrchestrator(invoker Invoker, limiter Waiter, chunkBytes, maxDocumentBytes, workers int) *Orchestrator {
	if chunkBytes <= 0 {
		chunkBytes = 48 * 1024
	}
	if maxDocumentBytes <= 0 {
		maxDocumentBytes = 2 * 1024 * 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &Orchestrator{
		invoker:    invoker,
		limiter:    limiter,
		chunkBytes: chunkBytes,
		maxDocs:    maxDocumentBytes,
		workers:    workers,
	}
}

// Annotate sends protected, tokenized HTML to the external service and
// returns the annotated document with its discovered tag set.
//
// Documents above the size ceiling skip annotation entirely. Documents
// above the chunk threshold are split, annotated by a bounded worker pool,
// and reassembled in original chunk order; a chunk that fails annotation
// is substituted unmodified and flagged through Result.Partial. A
// single-chunk document that fails is a hard error.
func (o *Orchestrator) Annotate(ctx context.Context, html string, mode Mode) (*Result, error) {
	if len(html) > o.maxDocs {
		logger.Warn("document exceeds annotation ceiling, skipping",
			"size", len(html), "ceiling", o.maxDocs)
		return &Result{HTML: html, Difficulty: DefaultDifficulty, Skipped: true}, nil
	}

	chunks := Split(html, o.chunkBytes)
	if len(chunks) == 1 {
		annotated, tags, difficulty, err := o.annotateOne(ctx, chunks[0], mode)
		if err != nil {
			return nil, err
		}
		return &Result{HTML: annotated, Tags: tags, Difficulty: difficulty}, nil
	}
	return o.annotateChunks(ctx, chunks, mode)
}

type chunkOutcome struct {
	html       string
	tags       []string
	difficulty int
	err        error
}

// annotateChunks runs the worker pool. Outcomes land in an indexed slice
// so reassembly follows original chunk order, not completion order.
func (o *Orchestrator) annotateChunks(ctx context.Context, chunks []string, mode Mode) (*Result, error) {
	outcomes := make([]chunkOutcome, len(chunks))
	jobs := make(chan int)

	var wg sync.WaitGroup
	workers := o.workers
	if workers > len(chunks) {
		workers = len(chunks)
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				annotated, tags, difficulty, err := o.annotateOne(ctx, chunks[i], mode)
				outcomes[i] = chunkOutcome{html: annotated, tags: tags, difficulty: difficulty, err: err}
			}
		}()
	}
	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	// The document grade is the highest grade seen across successful
	// chunks; with no successful chunk the default stands.
	res := &Result{Difficulty: DefaultDifficulty}
	graded := 0
	var b strings.Builder
	seen := make(map[string]bool)
	for i, out := range outcomes {
		if out.err != nil {
			// Per-chunk failure policy: keep the document whole by
			// substituting the unmodified chunk, surface via Partial.
			logger.Warn("chunk annotation failed, substituting original",
				"chunk", i, "error", out.err.Error())
			b.WriteString(chunks[i])
			res.Partial = true
			res.Substituted++
			continue
		}
		b.WriteString(out.html)
		if out.difficulty > graded {
			graded = out.difficulty
		}
		for _, tag := range out.tags {
			if !seen[tag] {
				seen[tag] = true
				res.Tags = append(res.Tags, tag)
			}
		}
	}
	if graded > 0 {
		res.Difficulty = graded
	}
	res.HTML = b.String()
	return res, nil
}

// annotateOne performs a single service round trip and all response
// post-processing for one chunk or whole document.
func (o *Orchestrator) annotateOne(ctx context.Context, html string, mode Mode) (string, []string, int, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", nil, 0, fmt.Errorf("annotation rate limit: %w", err)
		}
	}

	raw, err := o.invoker.Invoke(ctx, systemPrompt(mode), html)
	if err != nil {
		return "", nil, 0, err
	}

	cleaned := stripCodeFences(raw)
	difficulty := DefaultDifficulty
	if mode == ModePhishingCue {
		cleaned, difficulty = extractDifficulty(cleaned)
	}
	cleaned = extractMarkup(cleaned)

	if float64(len(cleaned)) < truncationRatio*float64(len(html)) {
		logger.Warn("annotation response much smaller than input, possible truncation",
			"in_bytes", len(html), "out_bytes", len(cleaned))
	}

	tags := scanMarkers(cleaned, mode)
	return cleaned, tags, difficulty, nil
}

var (
	fenceRe      = regexp.MustCompile("(?m)^```[a-zA-Z]*[ \t]*\r?\n?")
	difficultyRe = regexp.MustCompile(`^DIFFICULTY:\s*([123])[ \t]*\r?\n?`)

	satTagRe   = regexp.MustCompile(`data-sat-tag\s*=\s*["']([^"']+)["']`)
	phishCueRe = regexp.MustCompile(`data-phish-cue\s*=\s*["']([^"']+)["']`)
)

// stripCodeFences removes markdown code fences the model sometimes wraps
// its output in.
func stripCodeFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(s, ""))
}

// extractDifficulty parses and removes the mandatory DIFFICULTY:<1|2|3>
// first line of a phishing-cue response. Absence defaults to 2. Only the
// leading line counts: the body may legitimately contain the same text,
// and body text is never the grade and never stripped.
func extractDifficulty(s string) (string, int) {
	m := difficultyRe.FindStringSubmatch(s)
	if m == nil {
		return s, DefaultDifficulty
	}
	d, _ := strconv.Atoi(m[1])
	return strings.TrimSpace(s[len(m[0]):]), d
}

// extractMarkup slices the response down to the substring between the
// first '<' and the last '>' when the model added narration around the
// document. A response that already looks like pure markup is untouched.
func extractMarkup(s string) string {
	t := strings.TrimSpace(s)
	if strings.HasPrefix(t, "<") && strings.HasSuffix(t, ">") {
		return t
	}
	first := strings.Index(t, "<")
	last := strings.LastIndex(t, ">")
	if first < 0 || last < first {
		return t
	}
	return t[first : last+1]
}

// scanMarkers collects marker attribute values and intersects them with
// the mode's closed vocabulary. Out-of-vocabulary markers are dropped from
// the tag set but left in the HTML.
func scanMarkers(html string, mode Mode) []string {
	re, vocab := satTagRe, domain.EducationalTags
	if mode == ModePhishingCue {
		re, vocab = phishCueRe, domain.PhishingCueTags
	}

	var tags []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(html, -1) {
		// A marker attribute may carry several comma-separated values.
		for _, tag := range strings.Split(m[1], ",") {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			if domain.InVocabulary(tag, vocab) {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

// systemPrompt builds the strict instruction contract for a mode: the
// complete input back, marker attributes only, no structural changes, no
// commentary.
func systemPrompt(mode Mode) string {
	var b strings.Builder
	switch mode {
	case ModePhishingCue:
		b.WriteString(`You annotate simulated phishing emails for a security-awareness platform.

Your FIRST line of output must be exactly "DIFFICULTY:<n>" where <n> is 1 (obvious), 2 (moderate), or 3 (subtle), grading how hard the phish is to spot.

After that line, return the COMPLETE input email body with one change only: add a data-phish-cue="<name>" attribute to each element that exhibits a phishing indicator. Permitted names, use no others:
`)
		for _, t := range domain.PhishingCueTags {
			b.WriteString("- " + t + "\n")
		}
	default:
		b.WriteString(`You annotate training content for a security-awareness platform.

Return the COMPLETE input document with one change only: add a data-sat-tag="<name>" attribute to each interactive element. Permitted names, use no others:
`)
		for _, t := range domain.EducationalTags {
			b.WriteString("- " + t + "\n")
		}
	}
	b.WriteString(`
Rules:
- Do NOT remove, reorder, reformat, or rewrite any existing markup or text.
- Do NOT touch placeholder tokens (__ASSET_REF_*__) or comments.
- Do NOT add commentary, explanations, or markdown fences.
- Output the annotated document and nothing else.`)
	return b.String()
}
