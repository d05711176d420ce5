package audit

import "context"

type originKey struct{}

// Origin identifies where a request came from.
type Origin struct {
	Address string
	Agent   string
}

// WithOrigin attaches the client origin so records built deeper in the call
// chain carry it without threading it through every signature.
func WithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

func OriginFrom(ctx context.Context) Origin {
	o, _ := ctx.Value(originKey{}).(Origin)
	return o
}
