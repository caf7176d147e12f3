package core

import "errors"

var (
	// ErrMissingInput is returned when a request has no usable coordinates.
	ErrMissingInput = errors.New("missing input coordinates")
	// ErrProviderDisabled is returned when a provider is switched off by configuration.
	ErrProviderDisabled = errors.New("provider disabled")
	// ErrMissingConfig is returned when a provider lacks credentials or a base URL.
	ErrMissingConfig = errors.New("provider configuration missing")
	// ErrUpstreamRejected is returned for 4xx responses from an external service.
	ErrUpstreamRejected = errors.New("upstream rejected request")
	// ErrUpstreamUnavailable is returned for network errors, timeouts and 5xx responses.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEmptyResult is returned when a provider succeeded but produced no usable geometry.
	ErrEmptyResult = errors.New("empty result")
)

// Reason codes echoed in persisted result metadata.
const (
	ReasonZeroElapsed         = "ZERO_ELAPSED"
	ReasonMissingInput        = "MISSING_INPUT"
	ReasonProviderDisabled    = "PROVIDER_DISABLED"
	ReasonMissingConfig       = "MISSING_CONFIG"
	ReasonUpstreamRejected    = "UPSTREAM_REJECTED"
	ReasonUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ReasonEmptyResult         = "EMPTY_RESULT"
	ReasonStrategyFailed      = "STRATEGY_FAILED"
)

// ReasonFor maps an error from the taxonomy above to its reason code.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingInput):
		return ReasonMissingInput
	case errors.Is(err, ErrProviderDisabled):
		return ReasonProviderDisabled
	case errors.Is(err, ErrMissingConfig):
		return ReasonMissingConfig
	case errors.Is(err, ErrUpstreamRejected):
		return ReasonUpstreamRejected
	case errors.Is(err, ErrUpstreamUnavailable):
		return ReasonUpstreamUnavailable
	case errors.Is(err, ErrEmptyResult):
		return ReasonEmptyResult
	default:
		return ReasonStrategyFailed
	}
}
