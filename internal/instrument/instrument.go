// Package instrument prepares processed artifacts for serving: it injects
// a base-URL element so content-relative asset paths resolve, and a
// tracking snippet that reports view, interaction, and score events back
// to the platform without blocking the page.
package instrument

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/osteele/liquid"
)

var (
	headOpenRe  = regexp.MustCompile(`(?i)<head\b[^>]*>`)
	headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)
	bodyCloseRe = regexp.MustCompile(`(?i)</body\s*>`)
)

// trackerTemplate is the instrumentation snippet. The session token is
// read from the serving context at page load; all event calls use
// sendBeacon-style fire-and-forget requests so tracking never blocks the
// recipient's interaction with the content.
const trackerTemplate = `<script>
(function () {
  var token = new URLSearchParams(window.location.search).get("t") ||
    document.documentElement.getAttribute("data-session-token");
  if (!token) { return; }
  var base = "{{ tracking_base }}";
  function send(path, payload) {
    var body = JSON.stringify(payload || {});
    if (navigator.sendBeacon) {
      navigator.sendBeacon(base + path + "/" + token, body);
    } else {
      var xhr = new XMLHttpRequest();
      xhr.open("POST", base + path + "/" + token, true);
      xhr.setRequestHeader("Content-Type", "application/json");
      xhr.send(body);
    }
  }
  send("/view");
  document.addEventListener("click", function (e) {
    var el = e.target.closest("[data-sat-tag],[data-phish-cue]");
    if (!el) { return; }
    send("/interaction", {
      element: el.getAttribute("data-sat-tag") || el.getAttribute("data-phish-cue"),
      kind: "click"
    });
  });
  document.addEventListener("change", function (e) {
    var el = e.target.closest("[data-sat-tag],[data-phish-cue]");
    if (!el) { return; }
    send("/interaction", { element: el.getAttribute("data-sat-tag") || el.getAttribute("data-phish-cue"), kind: "input" });
  });
  window.platformReportScore = function (contentId, score) {
    send("/score", { content_id: contentId, score: score });
  };
})();
</script>`

// Injector renders and places the serving-time additions.
type Injector struct {
	engine       *liquid.Engine
	trackingBase string
}

// NewInjector creates an injector whose snippet posts to trackingBase
// (e.g. "/t").
func NewInjector(trackingBase string) *Injector {
	return &Injector{engine: liquid.NewEngine(), trackingBase: strings.TrimRight(trackingBase, "/")}
}

// Instrument returns html with a <base> element as the first child of
// <head> (or immediately before </head> when no opening head tag exists)
// and the tracking snippet immediately before </body> (appended at
// document end when no closing body tag exists). baseURL is the
// content-relative serving prefix for the artifact's assets.
func (i *Injector) Instrument(html, baseURL string) (string, error) {
	snippet, err := i.engine.ParseAndRenderString(trackerTemplate, liquid.Bindings{
		"tracking_base": i.trackingBase,
	})
	if err != nil {
		return "", fmt.Errorf("render tracking snippet: %w", err)
	}

	baseTag := fmt.Sprintf(`<base href="%s">`, baseURL)
	if loc := headOpenRe.FindStringIndex(html); loc != nil {
		html = html[:loc[1]] + baseTag + html[loc[1]:]
	} else if loc := headCloseRe.FindStringIndex(html); loc != nil {
		html = html[:loc[0]] + baseTag + html[loc[0]:]
	} else {
		// No head at all; emails and fragments still need the base tag.
		html = baseTag + html
	}

	if loc := bodyCloseRe.FindStringIndex(html); loc != nil {
		html = html[:loc[0]] + snippet + html[loc[0]:]
	} else {
		html = html + snippet
	}
	return html, nil
}
