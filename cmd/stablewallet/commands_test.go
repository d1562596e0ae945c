package main

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func testContext(t *testing.T, args ...string) *cli.Context {
	t.Helper()

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, set.Parse(args))

	return cli.NewContext(cli.NewApp(), set, nil)
}

// TestParseAmount asserts amount arguments must be positive integers.
func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		arg     string
		amount  int64
		wantErr bool
	}{
		{
			name:   "valid",
			arg:    "2500",
			amount: 2500,
		},
		{
			name:    "zero",
			arg:     "0",
			wantErr: true,
		},
		{
			name:    "negative",
			arg:     "-5",
			wantErr: true,
		},
		{
			name:    "not a number",
			arg:     "ten",
			wantErr: true,
		},
		{
			name:    "missing",
			arg:     "",
			wantErr: true,
		},
	}

	for _, test := range tests {
		test := test

		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			amount, err := parseAmount(
				testContext(t, test.arg), 0,
			)
			if test.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.amount, amount)
		})
	}
}

// TestSetupLoggersRejectsUnknownLevel asserts the debuglevel flag is
// validated before any command runs.
func TestSetupLoggersRejectsUnknownLevel(t *testing.T) {
	require.Error(t, setupLoggers("loud"))
	require.NoError(t, setupLoggers("info"))
	require.NoError(t, setupLoggers("off"))
}
