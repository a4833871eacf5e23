package orders

import "context"

type mutationKey struct{}

// WithMutationID tags writes made with ctx so the writing client can
// recognise their echoes on the change feed.
func WithMutationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, mutationKey{}, id)
}

func MutationID(ctx context.Context) string {
	id, _ := ctx.Value(mutationKey{}).(string)
	return id
}
