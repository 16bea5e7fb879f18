package gatehouse

import "github.com/gatehouse-auth/gatehouse/server"

// Error is the OAuth protocol error type used across the library.
// It is defined in the server package and aliased here so consumers can
// work entirely against the root package.
type Error = server.Error

// NewError creates a new OAuth protocol error
var NewError = server.NewError

// AsError unwraps an error chain to a protocol *Error
var AsError = server.AsError

// OAuth error codes, re-exported from the server package
const (
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeInvalidToken            = server.ErrorCodeInvalidToken
	ErrorCodeInsufficientScope       = server.ErrorCodeInsufficientScope
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
	ErrorCodeServerError             = server.ErrorCodeServerError
)

// Common OAuth error constructors, re-exported from the server package
var (
	ErrInvalidRequest          = server.ErrInvalidRequest
	ErrInvalidClient           = server.ErrInvalidClient
	ErrInvalidGrant            = server.ErrInvalidGrant
	ErrInvalidToken            = server.ErrInvalidToken
	ErrInsufficientScope       = server.ErrInsufficientScope
	ErrUnsupportedGrantType    = server.ErrUnsupportedGrantType
	ErrUnsupportedResponseType = server.ErrUnsupportedResponseType
	ErrAccessDenied            = server.ErrAccessDenied
	ErrServerError             = server.ErrServerError
)
