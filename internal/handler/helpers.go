package handler

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mrecall/internal/middleware"
	"github.com/xxxsen/mrecall/internal/pkg/errcode"
	appErr "github.com/xxxsen/mrecall/internal/pkg/errors"
	"github.com/xxxsen/mrecall/internal/pkg/response"
)

// resolveUserID prefers the token identity; the request value is only used
// when the server runs without jwt_secret.
func resolveUserID(c *gin.Context, fromRequest string) string {
	if v, ok := c.Get(middleware.ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return strings.TrimSpace(fromRequest)
}

func parseCapturedAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	ts = ts.UTC()
	return &ts, nil
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case appErr.IsKind(err, appErr.KindProviderUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "model provider unavailable")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
