package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/intake/internal/core"
)

// WithRequestMetadata copies the client address and User-Agent into ctx
// for audit entries. RemoteAddr has already been resolved by
// TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.WithRequestMeta(ctx, core.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
}
