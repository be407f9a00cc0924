package command

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())

	_, err := r.Run(context.Background(), Command{Name: "definitely-not-a-binary-xyz"})
	require.Error(t, err)
}

func TestExecRunner_Env(t *testing.T) {
	r := NewExecRunner(zerolog.Nop())

	res, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "printf %s \"$BACKUP_TEST_VAR\""},
		Env:  []string{"BACKUP_TEST_VAR=hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Stdout)
}
