package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestRequired(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"non-empty", "value", false},
		{"empty", "", true},
		{"whitespace only", "   \t", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Required("field", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("Required(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrRequired) {
				t.Errorf("error should match ErrRequired, got %v", err)
			}
		})
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("field", "short", 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := MaxLength("field", strings.Repeat("x", 11), 10)
	if !errors.Is(err, ErrTooLong) {
		t.Errorf("expected ErrTooLong, got %v", err)
	}
}

func TestInstanceName(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr error
	}{
		{"simple", "vpn1", nil},
		{"with separators", "office.mesh-prod_2", nil},
		{"empty", "", ErrRequired},
		{"leading dash", "-vpn", ErrInvalidFormat},
		{"spaces", "my vpn", ErrInvalidFormat},
		{"slash", "a/b", ErrInvalidFormat},
		{"too long", strings.Repeat("a", MaxInstanceNameLength+1), ErrTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InstanceName("name", tt.value)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("InstanceName(%q) unexpected error: %v", tt.value, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("InstanceName(%q) error = %v, want %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestPort(t *testing.T) {
	for _, v := range []int{0, 1, 51820, 65535} {
		if err := Port("port", v); err != nil {
			t.Errorf("Port(%d) unexpected error: %v", v, err)
		}
	}
	for _, v := range []int{-1, 65536} {
		if !errors.Is(Port("port", v), ErrOutOfRange) {
			t.Errorf("Port(%d) should be out of range", v)
		}
	}
}

func TestMTU(t *testing.T) {
	for _, v := range []int{0, MinMTU, 1420, MaxMTU} {
		if err := MTU("mtu", v); err != nil {
			t.Errorf("MTU(%d) unexpected error: %v", v, err)
		}
	}
	for _, v := range []int{100, MinMTU - 1, MaxMTU + 1} {
		if !errors.Is(MTU("mtu", v), ErrOutOfRange) {
			t.Errorf("MTU(%d) should be out of range", v)
		}
	}
}

func TestAddress(t *testing.T) {
	if err := Address("ip", "10.42.0.1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Address("ip", "fd00::1"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !errors.Is(Address("ip", "10.42.0.0/16"), ErrInvalidFormat) {
		t.Error("CIDR should not validate as a bare address")
	}
	if !errors.Is(Address("ip", ""), ErrRequired) {
		t.Error("empty address should be required error")
	}
}

func TestCIDR(t *testing.T) {
	if err := CIDR("subnet", "10.42.0.0/16"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !errors.Is(CIDR("subnet", "10.42.0.1"), ErrInvalidFormat) {
		t.Error("bare address should not validate as CIDR")
	}
}

func TestHostPort(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"ipv4", "192.0.2.1:51820", false},
		{"hostname", "relay.example.org:51820", false},
		{"ipv6", "[fd00::1]:51820", false},
		{"missing port", "192.0.2.1", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := HostPort("endpoint", tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("HostPort(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestResult_Error(t *testing.T) {
	r := NewResult("network.listen_port", "must be between 0 and 65535", ErrOutOfRange)
	want := "network.listen_port: must be between 0 and 65535"
	if r.Error() != want {
		t.Errorf("Error() = %q, want %q", r.Error(), want)
	}

	r = NewResult("", "bare message", ErrInvalidFormat)
	if r.Error() != "bare message" {
		t.Errorf("Error() = %q, want %q", r.Error(), "bare message")
	}
}
