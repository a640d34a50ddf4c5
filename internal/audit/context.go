package audit

import "context"

type contextKey struct{}

// RequestInfo is the per-request data every audit event carries.
type RequestInfo struct {
	RequestID string
	IPAddress string
	UserAgent string
	UserID    int64
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// WithUser records the authenticated user on an existing request context.
func WithUser(ctx context.Context, userID int64) context.Context {
	info, _ := ctx.Value(contextKey{}).(RequestInfo)
	info.UserID = userID
	return WithRequestInfo(ctx, info)
}

func RequestInfoFrom(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(contextKey{}).(RequestInfo)
	return info, ok
}

func fillFromContext(ctx context.Context, event *Event) {
	info, ok := RequestInfoFrom(ctx)
	if !ok {
		return
	}
	if event.RequestID == "" {
		event.RequestID = info.RequestID
	}
	if event.IPAddress == "" {
		event.IPAddress = info.IPAddress
	}
	if event.UserAgent == "" {
		event.UserAgent = info.UserAgent
	}
	if event.UserID == 0 {
		event.UserID = info.UserID
	}
}
