package auth

import (
	"strconv"
	"testing"
)

func TestRandomOTPRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := randomOTP()
		if err != nil {
			t.Fatalf("randomOTP returned error: %v", err)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric: %v", code, err)
		}
		if n < 0 || n >= otpUpperBound {
			t.Fatalf("code %d out of range", n)
		}
		if code != strconv.Itoa(n) {
			t.Fatalf("code %q is padded", code)
		}
	}
}
