package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lattice", cmd.Use)
	assert.Contains(t, cmd.Long, "LATTICE_*")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"ddl"}, {"migrate"}, {"top"}, {"expire"},
		{"entity", "get"}, {"entity", "write"}, {"entity", "clear"}, {"entity", "delete"},
		{"edge", "create"}, {"edge", "delete"}, {"edge", "clear"}, {"edge", "neighbors"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"driver", "dsn", "catalog"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Empty(t, f.DefValue)
	}
	assert.Equal(t, ".env", cmd.PersistentFlags().Lookup("env-file").DefValue)
}

func TestEntityWriteFlags(t *testing.T) {
	cmd := NewRootCommand()
	writeCmd, _, err := cmd.Find([]string{"entity", "write"})
	require.NoError(t, err)

	modeFlag := writeCmd.Flags().Lookup("mode")
	require.NotNil(t, modeFlag)
	assert.Equal(t, ModeMerge, modeFlag.DefValue)

	dataFlag := writeCmd.Flags().Lookup("data")
	require.NotNil(t, dataFlag)
	assert.Equal(t, "{}", dataFlag.DefValue)
}

func TestExpireCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	expireCmd, _, err := cmd.Find([]string{"expire"})
	require.NoError(t, err)

	for _, name := range []string{"watch", "interval", "metrics-addr"} {
		assert.NotNil(t, expireCmd.Flags().Lookup(name), name)
	}
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "ddl"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
