package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCaptureCmd(out *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	return cmd
}

func TestRunFilterCheck_ValidExpression(t *testing.T) {
	var out bytes.Buffer
	cmd := newCaptureCmd(&out)

	require.NoError(t, runFilterCheck(cmd, []string{`event.priority == 'Critical'`}))
	assert.Contains(t, out.String(), "valid")
}

func TestRunFilterCheck_InvalidExpressionFails(t *testing.T) {
	var out bytes.Buffer
	cmd := newCaptureCmd(&out)

	// A non-nil error makes the process exit non-zero.
	err := runFilterCheck(cmd, []string{`event.priority ==`})
	require.Error(t, err)
	assert.Contains(t, out.String(), "invalid")
}
