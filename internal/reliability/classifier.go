package reliability

import (
	"time"

	"google.golang.org/grpc/codes"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableBaiduErrNo classifies text2audio err_no values worth a retry.
// 502 is an expired token (the provider renews it), 503 a backend failure.
func IsRetryableBaiduErrNo(errNo int) bool {
	switch errNo {
	case 502, 503:
		return true
	default:
		return false
	}
}

// IsRetryableGRPCCode classifies transient gRPC status codes.
func IsRetryableGRPCCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
