package auth

import (
	"context"
	"time"
)

type contextKey string

const OperatorKey contextKey = "operator"

// Operator is the caller authenticated by the operator key.
type Operator struct {
	Name            string
	AuthenticatedAt time.Time
}

func GetOperatorFromContext(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(OperatorKey).(*Operator)
	return op, ok
}

func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, OperatorKey, op)
}
