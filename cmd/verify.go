package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/cse-daily-fetcher/internal/audit"
	"github.com/JakeFAU/cse-daily-fetcher/internal/hash/sha256"
)

// newVerifyCmd creates the 'verify' subcommand. With no arguments every
// report in the output directory is checked.
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [report.pdf...]",
		Short: "Check saved reports for bad names, truncation and non-PDF content",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			auditor := audit.New(afero.NewOsFs(), sha256.New(), e.cfg.Output.MinPayloadBytes)
			var findings []audit.Finding
			if len(args) == 0 {
				findings, err = auditor.Dir(e.cfg.Output.Dir)
				if err != nil {
					return err
				}
			}
			for _, path := range args {
				f, err := auditor.File(path)
				if err != nil {
					return err
				}
				findings = append(findings, f)
			}
			return writeFindings(cmd.OutOrStdout(), findings)
		},
	}
}

func writeFindings(w io.Writer, findings []audit.Finding) error {
	t := newTable(w)
	t.AppendHeader(table.Row{"File", "Size", "SHA256", "Status"})
	bad := 0
	for _, f := range findings {
		status := "ok"
		if !f.OK() {
			bad++
			status = strings.Join(f.Problems, ",")
		}
		t.AppendRow(table.Row{f.Path, f.SizeBytes, f.SHA256, status})
	}
	t.AppendFooter(table.Row{"", "", "Failed", fmt.Sprintf("%d/%d", bad, len(findings))})
	t.Render()
	if bad > 0 {
		return fmt.Errorf("%d of %d reports failed verification", bad, len(findings))
	}
	return nil
}
