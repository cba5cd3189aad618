package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mstgnz/paykit/infra/logger"
	"github.com/mstgnz/paykit/infra/response"
	"github.com/mstgnz/paykit/provider"
)

// statusForCode maps a PaymentError code onto an HTTP status. Unknown codes
// mean the provider rejected or failed the call.
func statusForCode(code string) int {
	switch code {
	case provider.CodeProviderNotFound, provider.CodePaymentNotFound, provider.CodeSubscriptionNotFound:
		return http.StatusNotFound
	case provider.CodeWebhookSignatureInvalid, provider.CodeWebhookHeadersMissing, provider.CodeWebhookHeadersIncomplete:
		return http.StatusUnauthorized
	case provider.CodeInvalidPayload, provider.CodeParsingError, provider.CodeInvalidRequest:
		return http.StatusBadRequest
	case provider.CodeNotSupported, provider.CodeManualConfirmationRequired, provider.CodeManualApprovalRequired:
		return http.StatusUnprocessableEntity
	}
	if provider.IsConfigurationError(code) {
		return http.StatusServiceUnavailable
	}
	if strings.HasPrefix(code, "MISSING_") {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

// writeError answers a Go error returned by the payment manager
func writeError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
	case errors.Is(err, provider.ErrNoStore):
		status = http.StatusServiceUnavailable
	case errors.Is(err, provider.ErrRecordNotFound):
		status = http.StatusNotFound
	default:
		if pe, ok := provider.AsPaymentError(err); ok {
			status = statusForCode(pe.Code)
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error(message, err)
	}
	response.Error(w, status, message, err)
}

// writeResult answers a provider result. Failed results keep their body so
// callers see the structured provider error.
func writeResult(w http.ResponseWriter, success bool, okStatus int, message string, perr *provider.PaymentError, result any) {
	if success {
		response.Success(w, okStatus, message, result)
		return
	}

	status := http.StatusBadGateway
	msg := "Provider request failed"
	if perr != nil {
		status = statusForCode(perr.Code)
		msg = perr.Message
	}
	response.Result(w, status, msg, result)
}
