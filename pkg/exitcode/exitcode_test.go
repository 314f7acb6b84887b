package exitcode

import "testing"

func TestString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "Success"},
		{GeneralError, "General error"},
		{ConfigError, "Configuration error"},
		{PolicyViolation, "Policy violation"},
		{FileSystemError, "File system error"},
		{NetworkError, "Network error"},
		{TimeoutError, "Timeout error"},
		{UnsupportedFormat, "Unsupported format"},
		{6, "Unknown error"},
		{-1, "Unknown error"},
	}

	for _, test := range tests {
		if got := String(test.code); got != test.expected {
			t.Errorf("String(%d) = %q, expected %q", test.code, got, test.expected)
		}
	}
}

func TestCodesAreStable(t *testing.T) {
	// Published in the check help text and relied on by CI scripts.
	if PolicyViolation != 3 {
		t.Errorf("PolicyViolation = %d, expected 3", PolicyViolation)
	}
	if NetworkError != 5 || TimeoutError != 7 {
		t.Errorf("NetworkError = %d, TimeoutError = %d, expected 5 and 7", NetworkError, TimeoutError)
	}

	seen := make(map[int]bool)
	for _, code := range []int{Success, GeneralError, ConfigError, PolicyViolation, FileSystemError, NetworkError, TimeoutError, UnsupportedFormat} {
		if seen[code] {
			t.Errorf("exit code %d is not unique", code)
		}
		seen[code] = true
	}
}
