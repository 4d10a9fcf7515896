package obs

import "context"

type routePatternKey struct{}

// WithRoutePattern stamps the matched chi pattern on the context so metric
// labels use "/passport/vouchers/{code}/display" instead of raw paths.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, routePatternKey{}, pattern)
}

// RoutePatternFromContext returns the matched pattern, or "" before routing.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	pattern, _ := ctx.Value(routePatternKey{}).(string)
	return pattern
}
