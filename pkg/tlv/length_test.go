package tlv

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadLength(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    int
		wantLen int
		wantErr error
	}{
		{"Short Zero", Hex("00"), 0, 1, nil},
		{"Short Max", Hex("7F"), 127, 1, nil},
		{"Long One Octet", Hex("81 80"), 128, 2, nil},
		{"Long Two Octets", Hex("82 0100"), 256, 3, nil},
		{"Long Three Octets", Hex("83 010000"), 65536, 4, nil},
		{"Long Four Octets", Hex("84 01000000"), 1 << 24, 5, nil},
		{"Leading Zero Octets", Hex("85 00 01000000"), 1 << 24, 6, nil},
		{"Indefinite", Hex("80"), 0, 0, ErrMalformedLength},
		{"Empty", nil, 0, 0, ErrMalformedLength},
		{"Truncated Long Form", Hex("82 01"), 0, 0, ErrMalformedLength},
		{"Five Significant Octets", Hex("85 0100000000"), 0, 0, ErrMalformedLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n, err := ReadLength(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ReadLength() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want || n != tt.wantLen {
				t.Errorf("ReadLength() = (%d, %d), want (%d, %d)", got, n, tt.want, tt.wantLen)
			}
		})
	}
}

func TestAppendLength(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, Hex("00")},
		{127, Hex("7F")},
		{128, Hex("8180")},
		{255, Hex("81FF")},
		{256, Hex("820100")},
		{65535, Hex("82FFFF")},
		{65536, Hex("83010000")},
		{1 << 24, Hex("8401000000")},
	}

	for _, tt := range tests {
		got, err := AppendLength(nil, tt.n)
		if err != nil {
			t.Fatalf("AppendLength(%d): %v", tt.n, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("AppendLength(%d) Mismatch (-want +got):\n%s", tt.n, diff)
		}

		back, used, err := ReadLength(got)
		if err != nil || back != tt.n || used != len(got) {
			t.Errorf("ReadLength(%X) = (%d, %d, %v), want %d", got, back, used, err, tt.n)
		}
	}

	if _, err := AppendLength(nil, -1); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("AppendLength(-1) error = %v, want ErrInvalidValue", err)
	}
}

func TestDGILength(t *testing.T) {
	tests := []struct {
		n    int
		want []byte
	}{
		{0, Hex("00")},
		{0x10, Hex("10")},
		{0xFE, Hex("FE")},
		{0xFF, Hex("FF00FF")},
		{0x1234, Hex("FF1234")},
		{0xFFFF, Hex("FFFFFF")},
	}

	for _, tt := range tests {
		got, err := AppendDGILength(nil, tt.n)
		if err != nil {
			t.Fatalf("AppendDGILength(%d): %v", tt.n, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("AppendDGILength(%d) Mismatch (-want +got):\n%s", tt.n, diff)
		}

		back, used, err := ReadDGILength(got)
		if err != nil || back != tt.n || used != len(got) {
			t.Errorf("ReadDGILength(%X) = (%d, %d, %v), want %d", got, back, used, err, tt.n)
		}
	}

	if _, err := AppendDGILength(nil, 0x10000); !errors.Is(err, ErrValueTooLong) {
		t.Errorf("AppendDGILength(0x10000) error = %v, want ErrValueTooLong", err)
	}
	if _, _, err := ReadDGILength(Hex("FF01")); !errors.Is(err, ErrMalformedLength) {
		t.Errorf("ReadDGILength(truncated) error = %v, want ErrMalformedLength", err)
	}
}
