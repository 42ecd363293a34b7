package scanning

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"

	"github.com/IamSmokeY/SnapBooks/internal/apperr"
)

// classifyProviderError turns a provider failure into an ExtractionService error with a code the
// pipeline's retry classifier understands.
func classifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	msg := provider + " request failed"

	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Service(apperr.CodeTimeout, msg, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	text := strings.ToLower(err.Error())
	if isKeyProblem(text) {
		return apperr.Service(apperr.CodeAuth, msg, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return apperr.Service(codeForStatus(gerr.Code), msg, err)
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return apperr.Service(apperr.CodeTimeout, msg, err)
	}

	switch {
	case strings.Contains(text, "quota"), strings.Contains(text, "rate limit"), strings.Contains(text, "resource exhausted"), strings.Contains(text, "resourceexhausted"):
		return apperr.Service(apperr.CodeQuota, msg, err)
	case strings.Contains(text, "invalid argument"), strings.Contains(text, "invalidargument"):
		return apperr.Service(apperr.CodeConfig, msg, err)
	case strings.Contains(text, "timeout"), strings.Contains(text, "deadline"):
		return apperr.Service(apperr.CodeTimeout, msg, err)
	}
	return apperr.Service(apperr.CodeUnavailable, msg, err)
}

// isKeyProblem matches the messages providers use for missing or rejected credentials,
// whatever status code they arrive with
func isKeyProblem(text string) bool {
	return strings.Contains(text, "api key") || strings.Contains(text, "api_key") ||
		strings.Contains(text, "permission denied") || strings.Contains(text, "unauthenticated")
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden, status == http.StatusNotFound:
		return apperr.CodeAuth
	case status == http.StatusBadRequest:
		return apperr.CodeConfig
	case status == http.StatusTooManyRequests:
		return apperr.CodeQuota
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return apperr.CodeTimeout
	default:
		return apperr.CodeUnavailable
	}
}
