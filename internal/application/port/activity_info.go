package port

import "context"

// ActivityInfo describes the activity invocation an implementation is serving
type ActivityInfo struct {
	InstanceID string
	Name       string
	Attempt    int
}

type activityInfoKey struct{}

// WithActivityInfo attaches invocation details to ctx
func WithActivityInfo(ctx context.Context, info ActivityInfo) context.Context {
	return context.WithValue(ctx, activityInfoKey{}, info)
}

// ActivityInfoFrom returns the invocation details attached by the runner, if any
func ActivityInfoFrom(ctx context.Context) (ActivityInfo, bool) {
	info, ok := ctx.Value(activityInfoKey{}).(ActivityInfo)
	return info, ok
}
