package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
)

// isTransient reports network level failures worth retrying.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= http.StatusInternalServerError
}

// upstreamError classifies a failed call to a provider.
func upstreamError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var classified *appErr.Error
	if errors.As(err, &classified) {
		return err
	}
	return appErr.ProviderUnavailable(provider+" request failed", isTransient(err), err)
}

// statusError builds the error for a non-2xx response and drains the body.
func statusError(provider string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return appErr.ProviderUnavailable(
		fmt.Sprintf("%s request failed: %s: %s", provider, resp.Status, strings.TrimSpace(string(body))),
		retryableStatus(resp.StatusCode), nil)
}

func malformed(provider string, err error) error {
	return appErr.ProviderUnavailable(provider+" returned a malformed response", false, err)
}
