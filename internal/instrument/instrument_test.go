package instrument

import (
	"strings"
	"testing"
)

func TestInstrumentInjectsBaseAsFirstHeadChild(t *testing.T) {
	inj := NewInjector("/t")
	html := `<html><head><title>x</title></head><body><p>hi</p></body></html>`

	out, err := inj.Instrument(html, "/content/abc/")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	want := `<head><base href="/content/abc/"><title>`
	if !strings.Contains(out, want) {
		t.Fatalf("base tag not first head child:\n%s", out)
	}
}

func TestInstrumentBaseBeforeHeadCloseWithoutOpenTag(t *testing.T) {
	inj := NewInjector("/t")
	html := `<html><title>x</title></head><body></body></html>`

	out, err := inj.Instrument(html, "/content/abc/")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if !strings.Contains(out, `<base href="/content/abc/"></head>`) {
		t.Fatalf("base tag not placed before </head>:\n%s", out)
	}
}

func TestInstrumentSnippetBeforeBodyClose(t *testing.T) {
	inj := NewInjector("/t")
	html := `<html><head></head><body><p>hi</p></body></html>`

	out, err := inj.Instrument(html, "/")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	idx := strings.Index(out, "sendBeacon")
	end := strings.Index(out, "</body>")
	if idx < 0 || end < 0 || idx > end {
		t.Fatalf("tracking snippet not injected before </body>:\n%s", out)
	}
	if !strings.Contains(out, `var base = "/t";`) {
		t.Fatal("tracking base not rendered into snippet")
	}
}

func TestInstrumentAppendsSnippetWithoutBody(t *testing.T) {
	inj := NewInjector("/t")
	html := `<p>fragment without body</p>`

	out, err := inj.Instrument(html, "/")
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if !strings.HasSuffix(out, "</script>") {
		t.Fatalf("snippet not appended at document end:\n%s", out)
	}
	if !strings.HasPrefix(out, `<base href="/">`) {
		t.Fatalf("base tag not prepended for headless fragment:\n%s", out)
	}
}
