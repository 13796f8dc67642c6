package server

import (
	"halcyon-hq/switchboard/pkg/audit"
	"halcyon-hq/switchboard/pkg/turn"
)

// TurnResponse is the body returned by POST /v1/turns. It tells the
// telephony layer what to speak and what to do with the call.
type TurnResponse struct {
	// CallID echoes the request.
	CallID string `json:"call_id"`

	// TurnNumber is 1-based across the call.
	TurnNumber int `json:"turn_number"`

	// ResponseText is what the agent speaks.
	ResponseText string `json:"response_text"`

	// Action is the call disposition: respond, transfer, or hangup.
	Action string `json:"action"`

	// TransferTarget names the handoff destination for transfer actions.
	TransferTarget string `json:"transfer_target,omitempty"`

	// ShortCircuited reports that a stage ended the turn early.
	ShortCircuited bool `json:"short_circuited"`

	// SideEffects are instructions for the telephony layer beyond the
	// spoken response.
	SideEffects []turn.SideEffect `json:"side_effects,omitempty"`

	// Audit is the turn's decision trail.
	Audit []string `json:"audit,omitempty"`
}

func newTurnResponse(tc *turn.Context) TurnResponse {
	return TurnResponse{
		CallID:         tc.CallID,
		TurnNumber:     tc.TurnNumber,
		ResponseText:   tc.Final,
		Action:         string(tc.Action),
		TransferTarget: tc.TransferTarget,
		ShortCircuited: tc.ShortCircuited,
		SideEffects:    tc.Effects,
		Audit:          tc.Audit,
	}
}

// AuditTrailResponse is the body returned by GET /v1/calls/{call_id}/audit.
type AuditTrailResponse struct {
	// CallID echoes the path.
	CallID string `json:"call_id"`

	// Records are the call's turn records in turn order.
	Records []*audit.Record `json:"records"`
}

// ErrorResponse is the envelope for every error the API returns.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes what went wrong.
type ErrorDetail struct {
	// Message is a human-readable description.
	Message string `json:"message"`

	// Type categorizes the error.
	Type string `json:"type"`

	// Param names the request field that caused the error, when one did.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error type constants.
const (
	errorTypeInvalidRequest   = "invalid_request_error"
	errorTypeAuthentication   = "authentication_error"
	errorTypePermissionDenied = "permission_denied"
	errorTypeNotFound         = "not_found"
	errorTypeServerError      = "server_error"
	errorTypeGatewayTimeout   = "gateway_timeout"
)

// Error code constants.
const (
	codeMissingField     = "missing_field"
	codeInvalidValue     = "invalid_value"
	codeInvalidJSON      = "invalid_json"
	codeMethodNotAllowed = "method_not_allowed"
	codeRequestTooLarge  = "request_too_large"
	codeTenantMismatch   = "tenant_mismatch"
	codeInternalError    = "internal_error"
	codeTurnTimeout      = "turn_timeout"
)

func newErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

func newInvalidRequestError(message, param, code string) *ErrorResponse {
	return newErrorResponse(message, errorTypeInvalidRequest, param, code)
}

func newAuthenticationError(message string) *ErrorResponse {
	return newErrorResponse(message, errorTypeAuthentication, "", "")
}

func newPermissionDeniedError(message string) *ErrorResponse {
	return newErrorResponse(message, errorTypePermissionDenied, "", codeTenantMismatch)
}

func newNotFoundError(message string) *ErrorResponse {
	return newErrorResponse(message, errorTypeNotFound, "", "")
}

func newServerError(message string) *ErrorResponse {
	return newErrorResponse(message, errorTypeServerError, "", codeInternalError)
}

func newGatewayTimeoutError(message string) *ErrorResponse {
	return newErrorResponse(message, errorTypeGatewayTimeout, "", codeTurnTimeout)
}
