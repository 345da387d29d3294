package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "feedstore", cmd.Use)
	assert.Contains(t, cmd.Long, "falls back")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"user", "register"}, {"user", "login"}, {"user", "logout"}, {"user", "whoami"}, {"user", "show"},
		{"post", "create"}, {"post", "list"}, {"post", "show"},
		{"comment", "add"}, {"comment", "list"},
		{"like", "toggle"}, {"like", "status"},
		{"db", "status"}, {"db", "export"}, {"db", "import"}, {"db", "backup"}, {"db", "check"},
		{"test"},
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

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"data-dir", "mode"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestPostCreateFlags(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"post", "create"})
	require.NoError(t, err)

	for _, name := range []string{"title", "description", "tags", "image", "audio", "video"} {
		assert.NotNil(t, createCmd.Flags().Lookup(name), name)
	}
}

func TestUserRegisterFlags(t *testing.T) {
	cmd := NewRootCommand()
	registerCmd, _, err := cmd.Find([]string{"user", "register"})
	require.NoError(t, err)

	for _, name := range []string{"name", "email", "password", "confirm-password"} {
		assert.NotNil(t, registerCmd.Flags().Lookup(name), name)
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	assert.NotNil(t, testCmd.Flags().Lookup("filter"))
	assert.NotNil(t, testCmd.Flags().Lookup("backend"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "post", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
