package numbers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCodes(t *testing.T) {
	tests := []struct {
		name   string
		bodies []string
		want   []string
	}{
		{
			name:   "single code",
			bodies: []string{"Your verification code is 493021."},
			want:   []string{"493021"},
		},
		{
			name:   "no code present",
			bodies: []string{"Welcome! Reply STOP to unsubscribe."},
			want:   nil,
		},
		{
			name:   "longer digit runs are not codes",
			bodies: []string{"Call +15550010001 or 1234567 for support"},
			want:   nil,
		},
		{
			name:   "deduplicated in first-appearance order",
			bodies: []string{"code 111222", "use 333444 or 111222", "also 555666"},
			want:   []string{"111222", "333444", "555666"},
		},
		{
			name:   "multiple codes in one body",
			bodies: []string{"old 100200, new 300400"},
			want:   []string{"100200", "300400"},
		},
		{
			name:   "code at string edges",
			bodies: []string{"987654", "x998877"},
			want:   []string{"987654", "998877"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodes(tt.bodies))
		})
	}
}
