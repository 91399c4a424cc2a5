package middlewares

// Keys stored on the gin context.
const (
	CtxRequestID = "request_id"
	CtxClaims    = "auth.claims"
	CtxUserID    = "auth.userID"
	CtxEmail     = "auth.email"
	CtxRole      = "auth.role"
)
