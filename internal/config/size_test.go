package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"512", 512},
		{"10B", 10},
		{"1KB", 1000},
		{"1KiB", 1024},
		{"25MB", 25_000_000},
		{"2MiB", 2 << 20},
		{"1.5GiB", 3 << 29},
		{" 3 mb ", 3_000_000},
	}

	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSize_Invalid(t *testing.T) {
	for _, in := range []string{"big", "-1MB", "MB", "1.2.3KB"} {
		_, err := parseSize(in)
		assert.Error(t, err, in)
	}
}
