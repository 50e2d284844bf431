package cmd

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptPasswordFromPipe(t *testing.T) {
	var out bytes.Buffer

	pw, err := promptPassword(strings.NewReader("s3cret-pass\nignored\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", pw)
	assert.Empty(t, out.String())
}

func TestPromptPasswordWithoutNewline(t *testing.T) {
	pw, err := promptPassword(strings.NewReader("no-newline"), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pw)
}

func TestPromptPasswordEmptyInput(t *testing.T) {
	_, err := promptPassword(strings.NewReader(""), io.Discard)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPromptPasswordFromTerminal(t *testing.T) {
	origRead, origIsTerminal := readPassword, isTerminal
	t.Cleanup(func() {
		readPassword, isTerminal = origRead, origIsTerminal
	})
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("typed-pass"), nil }

	var out bytes.Buffer
	pw, err := promptPassword(os.Stdin, &out)
	require.NoError(t, err)
	assert.Equal(t, "typed-pass", pw)
	assert.Equal(t, "Enter password: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("tty closed") }
	_, err = promptPassword(os.Stdin, io.Discard)
	assert.ErrorContains(t, err, "tty closed")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"server", "migrate", "user", "events", "archive"} {
		assert.True(t, names[want], want)
	}
}

func TestArchiveShowRejectsBadID(t *testing.T) {
	err := archiveShowCmd.RunE(archiveShowCmd, []string{"abc"})
	assert.ErrorContains(t, err, "invalid user id")
}
