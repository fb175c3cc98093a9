package phone

import "testing"

func TestNormalizeE164In(t *testing.T) {
	cases := []struct {
		in, region, want string
	}{
		{"(415) 555-2671", "US", "+14155552671"},
		{"+44 20 7946 0958", "US", "+442079460958"},
		{"020 7946 0958", "gb", "+442079460958"},
		{"  not a number ", "US", "not a number"},
		{"", "US", ""},
	}
	for _, tc := range cases {
		if got := NormalizeE164In(tc.in, tc.region); got != tc.want {
			t.Errorf("NormalizeE164In(%q, %q) = %q, want %q", tc.in, tc.region, got, tc.want)
		}
	}
	if got := NormalizeE164("415-555-2671"); got != "+14155552671" {
		t.Errorf("NormalizeE164 default region: got %q", got)
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("415 555 2671", "") {
		t.Fatalf("expected US number to be valid")
	}
	if IsValid("12", "US") {
		t.Fatalf("expected short number to be invalid")
	}
}
