package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeConnectionString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "keyword password",
			in:   "host=db port=5432 password=hunter2 dbname=propbase",
			want: "host=db port=5432 password=[REDACTED] dbname=propbase",
		},
		{
			name: "url credentials",
			in:   "postgres://propbase:hunter2@db:5432/propbase",
			want: "postgres://[REDACTED]@[REDACTED]/propbase",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeConnectionString(tt.in))
		})
	}
}

func TestSanitizeError(t *testing.T) {
	err := errors.New("fetch failed: https://sheets.example.com/export?token=abcdef1234567890")
	assert.Equal(t, "fetch failed: https://sheets.example.com/export?token=[REDACTED]", SanitizeError(err))

	assert.Equal(t, "", SanitizeError(nil))
}
