// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/bugjar/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for bugjar
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bugjar",
		Short: "bugjar - a remote debugger for scripts",
		Long: `bugjar runs a script under a debugging session engine that a separate
controller process connects to over a socket. The program pauses at
breakpoints and steps; the controller inspects its stack and variables.

Run 'bugjar net SCRIPT' in one terminal and 'bugjar jar' in another, or
'bugjar local SCRIPT' for both at once.`,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
	}

	verbose, quiet, json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Only log errors")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/bugjar/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
