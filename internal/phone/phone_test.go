package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+55 (11) 98877-6655", "5511988776655"},
		{"5511988776655", "5511988776655"},
		{"55 11 9 8877 6655", "5511988776655"},
		{"whatsapp:+5511988776655", "5511988776655"},
		{"", ""},
		{"abc", ""},
		{"+ () -", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}
