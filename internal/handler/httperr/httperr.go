// Package httperr maps service errors to HTTP responses.
package httperr

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/healthwise/companion/internal/model/tip"
	"github.com/healthwise/companion/internal/repository"
	"github.com/healthwise/companion/internal/service/ai"
	chatservice "github.com/healthwise/companion/internal/service/chat"
	"github.com/healthwise/companion/internal/service/reminder"
	speechservice "github.com/healthwise/companion/internal/service/speech"
	"github.com/healthwise/companion/internal/service/weather"
	"github.com/healthwise/companion/internal/validation"
	"github.com/healthwise/companion/pkg/utils"
)

// Status 返回错误对应的状态码与对外消息。
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, chatservice.ErrSessionNotFound),
		errors.Is(err, reminder.ErrNotFound),
		errors.Is(err, tip.ErrNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, rootMessage(err)
	case errors.Is(err, ai.ErrInvalidInput),
		errors.Is(err, reminder.ErrInvalidInput),
		errors.Is(err, reminder.ErrInvalidResponse),
		errors.Is(err, chatservice.ErrEmptyMessage),
		errors.Is(err, chatservice.ErrUserRequired),
		errors.Is(err, weather.ErrLocationRequired),
		errors.Is(err, speechservice.ErrEmptyText):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ai.ErrModelFailure),
		errors.Is(err, speechservice.ErrDisabled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ai.UnavailableMessage
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// Respond 写出错误响应；校验错误带字段信息，5xx 记录日志。
func Respond(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if fields, ok := validation.Fields(err); ok {
		utils.RespondValidation(w, r, fields)
		return
	}
	status, message := Status(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	utils.RespondError(w, r, status, message)
}

// rootMessage 返回最内层的错误文本，避免泄露包装细节。
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
