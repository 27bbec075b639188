package shared

import (
	"context"
	"strings"
)

// RequestMeta identifies who triggered a change. It travels in the request
// context down to the audit trail.
type RequestMeta struct {
	Actor     string
	IPAddress string
	UserAgent string
}

type requestMetaContextKey struct{}

// SystemActor is recorded when no request initiated the change.
const SystemActor = "system"

// ContextWithRequestMeta stores the request metadata in context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaContextKey{}, meta)
}

// RequestMetaFromContext extracts the request metadata, defaulting the actor to SystemActor.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaContextKey{}).(RequestMeta)
	if strings.TrimSpace(meta.Actor) == "" {
		meta.Actor = SystemActor
	}
	return meta
}
