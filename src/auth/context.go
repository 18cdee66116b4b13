package auth

import "context"

type contextKey string

// OperatorKey holds the authenticated control-surface user.
const OperatorKey contextKey = "operator"

func WithOperator(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, OperatorKey, name)
}

func GetOperatorFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(OperatorKey).(string)
	return name, ok && name != ""
}
