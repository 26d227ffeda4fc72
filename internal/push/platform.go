package push

import "context"

// unavailablePlatform is the fallback when no push capability is wired
// in. Subscribe flows fail fast with ErrUnsupported before any prompt
// or server call.
type unavailablePlatform struct{}

func (unavailablePlatform) Supported() bool { return false }

func (unavailablePlatform) RequestPermission(ctx context.Context) error {
	return ErrUnsupported
}

func (unavailablePlatform) Subscribe(ctx context.Context, serverKey []byte) (Registration, error) {
	return Registration{}, ErrUnsupported
}

func (unavailablePlatform) Unsubscribe(ctx context.Context, endpoint string) error {
	return ErrUnsupported
}

// DefaultPlatform returns the platform capability for this build.
// Desktop terminals have no Web Push endpoint of their own, so the
// default reports unsupported; a browser-embedded build swaps in a
// real implementation.
func DefaultPlatform() Platform {
	return unavailablePlatform{}
}
