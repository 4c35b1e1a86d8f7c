package reliability

import (
	"testing"
	"time"

	"google.golang.org/grpc/codes"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableBaiduErrNo(t *testing.T) {
	cases := map[int]bool{500: false, 501: false, 502: true, 503: true, 3301: false}
	for errNo, want := range cases {
		if got := IsRetryableBaiduErrNo(errNo); got != want {
			t.Fatalf("IsRetryableBaiduErrNo(%d) = %v, want %v", errNo, got, want)
		}
	}
}

func TestIsRetryableGRPCCode(t *testing.T) {
	if !IsRetryableGRPCCode(codes.Unavailable) {
		t.Fatalf("Unavailable should be retryable")
	}
	if IsRetryableGRPCCode(codes.InvalidArgument) {
		t.Fatalf("InvalidArgument should not be retryable")
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
