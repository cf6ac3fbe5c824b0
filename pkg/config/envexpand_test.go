package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("EPISODIC_TEST_VAR", "value1")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"braces", "host: ${EPISODIC_TEST_VAR}", "host: value1"},
		{"bare", "host: $EPISODIC_TEST_VAR", "host: value1"},
		{"missing expands empty", "host: ${EPISODIC_TEST_VAR_MISSING}", "host: "},
		{"no vars unchanged", "host: localhost", "host: localhost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandEnv([]byte(tt.in))
			assert.Equal(t, tt.want, string(got))
		})
	}
}
