package domain

// ErrorCode is the wire-level error enumeration carried in response payloads.
// Business rejections are reported through these codes on an open
// connection; protocol and crypto faults close the connection instead.
type ErrorCode string

const (
	ErrCodeNone               ErrorCode = "none"
	ErrCodeUnknown            ErrorCode = "unknown"
	ErrCodeUnavailable        ErrorCode = "unavailable"
	ErrCodeAccountCreation    ErrorCode = "accountCreation"
	ErrCodeWrongLoginData     ErrorCode = "wrongLoginData"
	ErrCodeUserNotFound       ErrorCode = "userNotFound"
	ErrCodeUserIsBlocked      ErrorCode = "requestedUserIsBlocked"
	ErrCodeNoDataEntries      ErrorCode = "noDataEntries"
	ErrCodePayloadDataMissing ErrorCode = "payloadDataMissing"
	ErrCodeWeakPassword       ErrorCode = "weakPassword"
	ErrCodeRateLimited        ErrorCode = "rateLimited"
)

// ErrorInfo is embedded in response payloads. Field names the offending
// column for duplicate-key account creation errors.
type ErrorInfo struct {
	Code  ErrorCode `json:"code"`
	Field string    `json:"field,omitempty"`
}

// OK reports whether the info carries no error.
func (e ErrorInfo) OK() bool {
	return e.Code == "" || e.Code == ErrCodeNone
}

// NoError is the zero-value success marker sent in responses.
var NoError = ErrorInfo{Code: ErrCodeNone}
