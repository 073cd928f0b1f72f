package api

import (
	"net/http"
	"strings"

	"github.com/sentinel-secure/awareness-platform/internal/pkg/httputil"
	"github.com/sentinel-secure/awareness-platform/internal/pkg/logger"
)

// respondSafeError logs the full internal error and sends a sanitized JSON
// error response. 5xx responses never include err.Error() unless the server
// runs in debug mode; the full error is always logged server-side.
func (s *Server) respondSafeError(w http.ResponseWriter, code int, internalErr error, publicMsg string) {
	if internalErr != nil {
		logger.Error(publicMsg, "status", code, "error", internalErr.Error())
	}
	if s.debug && internalErr != nil {
		httputil.JSON(w, code, httputil.ErrorResponse{Error: publicMsg, Details: internalErr.Error()})
		return
	}
	httputil.Error(w, code, publicMsg)
}

// safeErrorMessage maps internal error text to a public-safe message.
// 4xx errors are about user input and pass through; 5xx errors collapse to
// coarse categories.
func safeErrorMessage(code int, internalErr error) string {
	if code < 500 {
		if internalErr != nil {
			return internalErr.Error()
		}
		return "bad request"
	}
	if internalErr == nil {
		return "an internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())
	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "transaction") ||
		strings.Contains(errStr, "database"):
		return "a database error occurred"

	case strings.Contains(errStr, "bedrock") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "invoke"):
		return "annotation service unavailable"
	}
	return "an internal error occurred"
}
