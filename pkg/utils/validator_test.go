package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateActor(t *testing.T) {
	valid := []string{"ana", "José María", "ops@empresa.ad", "user_01"}
	for _, a := range valid {
		assert.NoError(t, ValidateActor(a), a)
	}

	invalid := []string{"", "   ", "a\nb", strings.Repeat("x", 65), "drop;table"}
	for _, a := range invalid {
		assert.Error(t, ValidateActor(a), a)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "100", want: "100"},
		{in: " 12.5 ", want: "12.5"},
		{in: "12,5", want: "12.5"},
		{in: "-3", want: "-3"},
		{in: "1.234,5", err: true},
		{in: "abc", err: true},
		{in: "", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDecimal(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.String())
		})
	}
}

func TestValidateFileName(t *testing.T) {
	assert.NoError(t, ValidateFileName("factura.pdf"))
	assert.Error(t, ValidateFileName(""))
	assert.Error(t, ValidateFileName(strings.Repeat("a", 256)))
	assert.Error(t, ValidateFileName("\xff.pdf"))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "ab", SanitizeString("a\x00b\x7f"))
}
