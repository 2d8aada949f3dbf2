package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunVersionExitsZero(t *testing.T) {
	require.Equal(t, 0, run([]string{"--version"}))
	require.Equal(t, 0, run([]string{"-v"}))
}

func TestRunHelpExitsZero(t *testing.T) {
	require.Equal(t, 0, run([]string{"--help"}))
	require.Equal(t, 0, run([]string{"-h"}))
}

func TestRunMissingPositionalArgsExitsOne(t *testing.T) {
	require.Equal(t, 1, run([]string{}))
	require.Equal(t, 1, run([]string{"only-one-arg"}))
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	require.Equal(t, 1, run([]string{"--bogus-flag"}))
}
