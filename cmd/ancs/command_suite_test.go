package main

import (
	"bytes"

	"github.com/spf13/cobra"
	"github.com/srg/ancs/internal/testutils"
	"github.com/srg/ancs/pkg/config"
	"github.com/stretchr/testify/suite"
)

// CommandTestSuite runs commands against the real rootCmd with captured output.
// All cmd/ancs suites embed it.
type CommandTestSuite struct {
	suite.Suite
	helper *testutils.TestHelper
}

func (s *CommandTestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())

	// Flag variables are package globals and outlive a single Execute
	decodeFormat = config.FormatText
	listenConfigPath = ""
	listenFormat = config.FormatText
	listenInteractive = false
	listenNoColor = false
}

// ExecuteCommand runs cmd with args, returns stdout and stderr and the error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}
