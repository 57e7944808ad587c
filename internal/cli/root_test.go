package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("should register all subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range rootCmd.Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"start", "stop", "status", "play", "campaign", "configure"} {
			assert.True(t, names[want], "missing command %s", want)
		}
	})

	t.Run("should print the version", func(t *testing.T) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"--version"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, out.String(), "version "+version)
	})
}
