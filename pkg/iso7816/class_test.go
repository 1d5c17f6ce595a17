package iso7816

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClass(t *testing.T) {
	tests := []struct {
		cla  byte
		want Class
		str  string
	}{
		{0x00, Class{Raw: 0x00}, "00 channel 0"},
		{0x03, Class{Raw: 0x03, Channel: 3}, "03 channel 3"},
		{0x1F, Class{Raw: 0x1F, IsChained: true, SecureMessaging: SMHeaderAuth, Channel: 3},
			"1F channel 3, SM with authenticated header, chained"},
		{0x40, Class{Raw: 0x40, Channel: 4}, "40 channel 4"},
		{0x7F, Class{Raw: 0x7F, IsChained: true, SecureMessaging: SMHeaderNoProc, Channel: 19},
			"7F channel 19, SM, chained"},
		{0x80, Class{Raw: 0x80, IsProprietary: true}, "80 proprietary, channel 0"},
		{0x81, Class{Raw: 0x81, IsProprietary: true, Channel: 1}, "81 proprietary, channel 1"},
		{0xC4, Class{Raw: 0xC4, IsProprietary: true, Channel: 8}, "C4 proprietary, channel 8"},
		{0x90, Class{Raw: 0x90, IsProprietary: true, IsChained: true}, "90 proprietary, channel 0, chained"},
	}

	for _, tc := range tests {
		t.Run(tc.str, func(t *testing.T) {
			got, err := NewClass(tc.cla)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tc.str, got.String())

			raw, err := got.Encode()
			require.NoError(t, err)
			assert.Equal(t, tc.cla, raw)
		})
	}

	_, err := NewClass(0xFF)
	assert.Error(t, err)
}

func TestNewInterindustryClass(t *testing.T) {
	tests := []struct {
		name    string
		chained bool
		sm      SecureMessaging
		channel uint8
		want    byte
		wantErr bool
	}{
		{name: "basic", want: 0x00},
		{name: "channel 2 chained", chained: true, channel: 2, want: 0x12},
		{name: "channel 1 SM", sm: SMHeaderNoProc, channel: 1, want: 0x09},
		{name: "channel 5 SM", sm: SMHeaderNoProc, channel: 5, want: 0x61},
		{name: "channel 19", channel: 19, want: 0x4F},
		{name: "channel 20", channel: 20, wantErr: true},
		{name: "authenticated header on channel 4", sm: SMHeaderAuth, channel: 4, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := NewInterindustryClass(tc.chained, tc.sm, tc.channel)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Raw)

			back, err := NewClass(c.Raw)
			require.NoError(t, err)
			assert.Equal(t, c, back)
		})
	}
}
