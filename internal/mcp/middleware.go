package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type contextKey int

const sessionIDKey contextKey = iota

func getSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}

// sessionMiddleware tags the context with the client session id.
func sessionMiddleware() sdkmcp.Middleware {
	return func(next sdkmcp.MethodHandler) sdkmcp.MethodHandler {
		return func(ctx context.Context, method string, req sdkmcp.Request) (sdkmcp.Result, error) {
			if id := requestSessionID(req); id != "" {
				ctx = context.WithValue(ctx, sessionIDKey, id)
			}
			return next(ctx, method, req)
		}
	}
}

// requestSessionID prefers the Mcp-Session-Id header and falls back to the
// SDK session, which has no id over stdio.
func requestSessionID(req sdkmcp.Request) string {
	if extra := req.GetExtra(); extra != nil && extra.Header != nil {
		if id := extra.Header.Get("Mcp-Session-Id"); id != "" {
			return id
		}
	}
	return safeSessionID(req)
}
