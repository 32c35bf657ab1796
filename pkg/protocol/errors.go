package protocol

// Error codes carried in error frames.
const (
	ErrInvalidRequest   = "INVALID_REQUEST"
	ErrUnknownTypeCode  = "UNKNOWN_TYPE"
	ErrUnauthenticated  = "UNAUTHENTICATED"
	ErrAuthFailed       = "AUTH_FAILED"
	ErrAuthTimeout      = "AUTH_TIMEOUT"
	ErrTargetOffline    = "TARGET_OFFLINE"
	ErrNotAuthorized    = "NOT_AUTHORIZED"
	ErrNotPaired        = "NOT_PAIRED"
	ErrNoPendingRequest = "NO_PENDING_REQUEST"
	ErrRateLimited      = "RATE_LIMITED"
	ErrNotFound         = "NOT_FOUND"
	ErrInternal         = "INTERNAL"
	ErrSessionReplaced  = "SESSION_REPLACED"
)

// WebSocket close codes (application range 4000-4999).
const (
	CloseAuthFailed      = 4001
	CloseAuthTimeout     = 4008
	CloseSessionReplaced = 4009
	CloseDeviceRemoved   = 4010
)

// Human-readable messages for the router's rejection reasons.
const (
	MsgTargetOffline    = "target offline"
	MsgNotAuthorized    = "not authorized"
	MsgNotPaired        = "not paired"
	MsgNoPendingRequest = "no pending request"
	MsgAuthFailed       = "auth failed"
	MsgAuthTimeout      = "auth timeout"
)
