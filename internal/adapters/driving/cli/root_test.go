package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersion(t *testing.T) {
	// Given
	originalVersion := version
	defer func() { version = originalVersion }()

	// When
	SetVersion("1.2.3")

	// Then
	assert.Equal(t, "1.2.3", version)
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "teamsenum", rootCmd.Use)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	commandNames := make([]string, 0, len(rootCmd.Commands()))
	for _, cmd := range rootCmd.Commands() {
		commandNames = append(commandNames, cmd.Name())
	}

	assert.Contains(t, commandNames, "enum", "should have enum command")
	assert.Contains(t, commandNames, "version", "should have version command")
}

func TestExecute_ReturnsNoErrorWithHelp(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"--help"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	// When
	err := Execute()

	// Then
	assert.NoError(t, err)
	assert.Contains(t, buf.String(), "teamsenum")
}

func TestVersionCmd(t *testing.T) {
	// Given
	originalVersion := version
	defer func() { version = originalVersion }()
	SetVersion("0.4.0")

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetArgs([]string{"version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	// When
	err := Execute()

	// Then
	require.NoError(t, err)
	assert.Equal(t, "teamsenum 0.4.0\n", buf.String())
}
