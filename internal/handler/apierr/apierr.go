// Package apierr maps orchestrator errors to HTTP responses.
package apierr

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zhouzirui/toddler-chat/backend/internal/service/dialogue"
	"github.com/zhouzirui/toddler-chat/backend/internal/service/economy"
	speechsvc "github.com/zhouzirui/toddler-chat/backend/internal/service/speech"
	"github.com/zhouzirui/toddler-chat/backend/pkg/utils"
)

// StatusIgnored is the body status of a rejected turn.
const StatusIgnored = "ignored"

// Status returns the HTTP status code for err.
func Status(err error) int {
	switch {
	case dialogue.Ignored(err):
		return http.StatusAccepted
	case errors.Is(err, economy.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, dialogue.ErrSessionNotFound),
		errors.Is(err, dialogue.ErrUnknownItem):
		return http.StatusNotFound
	case errors.Is(err, dialogue.ErrUnknownChild),
		errors.Is(err, dialogue.ErrUnknownGame),
		errors.Is(err, dialogue.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, dialogue.ErrChildLocked):
		return http.StatusForbidden
	case errors.Is(err, dialogue.ErrParentRequired),
		errors.Is(err, dialogue.ErrNoConversation):
		return http.StatusConflict
	case errors.Is(err, speechsvc.ErrRecognitionUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Write responds with the mapping of err. Ignored turns answer 202 with
// status "ignored"; internal errors are logged and hidden.
func Write(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := Status(err)
	switch {
	case status == http.StatusAccepted:
		_ = utils.RespondJSON(w, status, map[string]string{"status": StatusIgnored, "reason": err.Error()})
	case status == http.StatusPaymentRequired:
		_ = utils.RespondError(w, status, economy.InsufficientFundsNotice)
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logger.Error("request failed", zap.Error(err))
		_ = utils.RespondError(w, status, "internal error")
	default:
		_ = utils.RespondError(w, status, err.Error())
	}
}
