package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/server/service"
	"github.com/apimgr/memberkit/src/utils"
)

var errRequirementsFailed = errors.New("requirements not met")

type checkStyles struct {
	title, pass, fail, dim lipgloss.Style
}

func newCheckStyles(color bool) checkStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return checkStyles{title: plain, pass: plain, fail: plain, dim: plain}
	}
	return checkStyles{
		title: lipgloss.NewStyle().Bold(true).Underline(true),
		pass:  lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:   lipgloss.NewStyle().Faint(true),
	}
}

func newCheckCommand(root *rootOptions) *cobra.Command {
	var appRoot string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check the server requirements without starting the wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadConfig(root.configPath)
			if err != nil {
				return err
			}
			if appRoot != "" {
				cfg.Paths.AppRoot = appRoot
			}

			probe := service.NewRequirementsProbe(cfg.Requirements, cfg.Paths.AppRoot, nil)
			report := probe.Check(cmd.Context())

			styles := newCheckStyles(utils.ColorEnabled() && stdoutIsTerminal())
			printReport(cmd.OutOrStdout(), report, styles)
			if !report.Passed() {
				return errRequirementsFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&appRoot, "app-root", "", "membership application root (overrides paths.app_root)")
	return cmd
}

func printReport(w io.Writer, r service.Report, s checkStyles) {
	mark := func(ok bool) string {
		if ok {
			return s.pass.Render(utils.GetOK())
		}
		return s.fail.Render(utils.GetError())
	}

	fmt.Fprintln(w, s.title.Render("Requirements"))
	for _, c := range r.Requirements {
		line := fmt.Sprintf("%s %s", mark(c.Passed), c.Label)
		if c.Detail != "" {
			line += " " + s.dim.Render("("+c.Detail+")")
		}
		fmt.Fprintln(w, line)
	}

	if len(r.Optional) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.title.Render("Optional"))
		for _, c := range r.Optional {
			fmt.Fprintf(w, "%s %s\n", mark(c.Passed), c.Label)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, s.title.Render("Recommendations"))
	for _, rec := range r.Recommendations {
		status := s.pass.Render(utils.GetOK())
		if !rec.OK {
			status = s.fail.Render(utils.GetWarning())
		}
		fmt.Fprintf(w, "%s %s: %s %s\n", status, rec.Name, rec.Current, s.dim.Render("(recommended "+rec.Recommended+")"))
	}

	fmt.Fprintln(w)
	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintln(w, s.fail.Render(fmt.Sprintf("%d requirement(s) not met", len(failed))))
	} else {
		fmt.Fprintln(w, s.pass.Render("All requirements are met"))
	}
}
