package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_run(t *testing.T) {
	zeros := func() *bytes.Reader { return bytes.NewReader(make([]byte, 64)) }

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"default hex", nil, strings.Repeat("0", 64) + "\n"},
		{"base64", []string{"--encoding", "base64"}, strings.Repeat("A", 43) + "\n"},
		{"env line", []string{"--env", "-b", "40"}, "SECRET_KEY=" + strings.Repeat("0", 80) + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer

			err := run(&out, zeros(), tt.args)

			require.NoError(t, err)
			require.Equal(t, tt.want, out.String())
		})
	}

	t.Run("too short key", func(t *testing.T) {
		err := run(&bytes.Buffer{}, zeros(), []string{"-b", "16"})
		require.Error(t, err)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		err := run(&bytes.Buffer{}, zeros(), []string{"-e", "rot13"})
		require.Error(t, err)
	})

	t.Run("random source exhausted", func(t *testing.T) {
		err := run(&bytes.Buffer{}, bytes.NewReader(make([]byte, 8)), nil)
		require.Error(t, err)
	})
}
