package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateLoginID_LengthAndAlphabet(t *testing.T) {
	for i := 0; i < 200; i++ {
		id, err := GenerateLoginID()
		require.NoError(t, err)
		require.Len(t, id, LoginIDLength)
		for _, r := range id {
			require.Contains(t, loginIDAlphabet, string(r), "unexpected character %q in %s", r, id)
		}
	}
}

func TestGenerateLoginID_NotConstant(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := GenerateLoginID()
		require.NoError(t, err)
		seen[id] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestFormatLoginID(t *testing.T) {
	require.Equal(t, "AB2C-D4EF-6GH8", FormatLoginID("AB2CD4EF6GH8"))
	// non-canonical input passes through untouched
	require.Equal(t, "SHORT", FormatLoginID("SHORT"))
}

func TestNormalizeLoginID(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "canonical", in: "AB2CD4EF6GH8", want: "AB2CD4EF6GH8"},
		{name: "display form", in: "AB2C-D4EF-6GH8", want: "AB2CD4EF6GH8"},
		{name: "lowercase with spaces", in: " ab2c d4ef 6gh8 ", want: "AB2CD4EF6GH8"},
		{name: "too short", in: "AB2CD4EF6GH", wantErr: true},
		{name: "too long", in: "AB2CD4EF6GH89", wantErr: true},
		{name: "empty", in: "", wantErr: true},
		{name: "ambiguous zero", in: "AB2CD4EF6GH0", wantErr: true},
		{name: "ambiguous letter O", in: "OB2CD4EF6GH8", wantErr: true},
		{name: "punctuation", in: "AB2C_D4EF6GH8", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeLoginID(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidLoginID)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFormatNormalizeRoundTrip(t *testing.T) {
	id, err := GenerateLoginID()
	require.NoError(t, err)

	display := FormatLoginID(id)
	require.Equal(t, 2, strings.Count(display, "-")) // three groups of four
	back, err := NormalizeLoginID(display)
	require.NoError(t, err)
	require.Equal(t, id, back)
}
