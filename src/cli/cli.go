// Package cli implements the memberkit-installer command line.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// BuildInfo is injected by main from ldflags
type BuildInfo struct {
	Version   string
	CommitID  string
	BuildDate string
}

type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCommand builds the command tree
func NewRootCommand(info BuildInfo) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "memberkit-installer",
		Short:         "Web installer for the memberkit membership application",
		Version:       info.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the binary without a subcommand starts the wizard
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, &serveOptions{}, info)
		},
	}
	root.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to installer.yml (default: search path, then MEMBERKIT_CONFIG)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(opts, info),
		newCheckCommand(opts),
		newConfigCommand(opts),
		newVersionCommand(info),
	)
	return root
}

// Execute runs the command line and returns the process exit code
func Execute(info BuildInfo) int {
	root := NewRootCommand(info)
	if err := root.Execute(); err != nil {
		root.PrintErrln("Error:", err)
		return 1
	}
	return 0
}

func stdoutIsTerminal() bool {
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
