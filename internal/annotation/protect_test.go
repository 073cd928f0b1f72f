package annotation

import (
	"strings"
	"testing"
)

const scriptedDoc = `<html><head>
<link rel="stylesheet" href="/css/main.css">
<script type="text/javascript">
  var config = { url: "/api", retries: 3 };
  if (a < b && b > c) { init(); }
</script>
</head><body>
<p>visible text</p>
<script src="/js/app.js"></script>
</body></html>`

func TestProtectRemovesScriptsAndLinks(t *testing.T) {
	protected, blocks := Protect(scriptedDoc)

	if strings.Contains(protected, "<script") || strings.Contains(protected, "</script>") {
		t.Error("script element survived protection")
	}
	if strings.Contains(protected, "<link") {
		t.Error("link element survived protection")
	}
	if len(blocks) != 3 {
		t.Fatalf("expected 3 protected blocks, got %d", len(blocks))
	}
	for token := range blocks {
		if !strings.HasPrefix(token, "<!--__PROTECTED_BLOCK_") {
			t.Errorf("placeholder %q is not an HTML comment", token)
		}
		if !strings.Contains(protected, token) {
			t.Errorf("placeholder %q missing from protected document", token)
		}
	}
}

func TestProtectUnprotectRoundTrip(t *testing.T) {
	protected, blocks := Protect(scriptedDoc)
	restored, err := Unprotect(protected, blocks)
	if err != nil {
		t.Fatalf("unprotect: %v", err)
	}
	if restored != scriptedDoc {
		t.Fatalf("round trip mismatch:\nwant %q\ngot  %q", scriptedDoc, restored)
	}
}

func TestProtectPreservesBlockBytes(t *testing.T) {
	_, blocks := Protect(scriptedDoc)
	var foundInline bool
	for _, block := range blocks {
		if strings.Contains(block, `if (a < b && b > c) { init(); }`) {
			foundInline = true
		}
	}
	if !foundInline {
		t.Fatal("inline script body not preserved verbatim")
	}
}

func TestProtectThenTokenizeLeavesScriptInternalsAlone(t *testing.T) {
	protected, blocks := Protect(scriptedDoc)
	tokenized, refs := Tokenize(protected)

	// The script src and link href were pulled out with their blocks, so
	// tokenization must not have touched them.
	for _, v := range refs {
		if v == "/js/app.js" || v == "/css/main.css" {
			t.Errorf("protected reference %q was tokenized", v)
		}
	}

	restored, err := RestoreRefs(tokenized, refs)
	if err != nil {
		t.Fatalf("restore refs: %v", err)
	}
	full, err := Unprotect(restored, blocks)
	if err != nil {
		t.Fatalf("unprotect: %v", err)
	}
	if full != scriptedDoc {
		t.Fatal("protect→tokenize→restore→unprotect did not round-trip")
	}
}

func TestUnprotectMissingBlockErrors(t *testing.T) {
	_, err := Unprotect("<!--__PROTECTED_BLOCK_0099__-->", map[string]string{})
	if err == nil {
		t.Fatal("expected error for placeholder missing from map")
	}
}
