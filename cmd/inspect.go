package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/cse-daily-fetcher/internal/clock/system"
	"github.com/JakeFAU/cse-daily-fetcher/internal/discover"
	"github.com/JakeFAU/cse-daily-fetcher/internal/naming"
	"github.com/JakeFAU/cse-daily-fetcher/internal/report"
)

// newInspectCmd creates the 'inspect' subcommand. It runs the locator and
// extractor against a saved page, typically the debug dump.
func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <page.html>",
		Short: "Check the selectors against a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			body, err := afero.ReadFile(afero.NewOsFs(), args[0])
			if err != nil {
				return fmt.Errorf("read page: %w", err)
			}
			clock, err := system.NewInZone(e.cfg.Output.Timezone)
			if err != nil {
				return err
			}
			namer := naming.New(clock, naming.Mode(e.cfg.Output.Disambiguator))
			return inspectPage(cmd.OutOrStdout(), body, namer)
		},
	}
}

func inspectPage(w io.Writer, body []byte, namer report.Namer) error {
	res, err := report.Inspect(body, discover.NewLocator(), discover.NewExtractor(nil, nil), namer)
	if errors.Is(err, report.ErrReportBlockNotFound) {
		writeCensus(w, body)
		return err
	}

	t := newTable(w)
	t.AppendRow(table.Row{"container", res.ContainerStrategy})
	if res.DateStrategy != "" {
		t.AppendRow(table.Row{"date", fmt.Sprintf("%q via %s", res.DateText, res.DateStrategy)})
	} else {
		t.AppendRow(table.Row{"date", "not found"})
	}
	t.AppendRow(table.Row{"filename", fmt.Sprintf("%s (from page: %t)", res.Filename, res.DateFromPage)})
	if res.LinkStrategy != "" {
		t.AppendRow(table.Row{"link", fmt.Sprintf("%s via %s", res.DownloadRef, res.LinkStrategy)})
	} else {
		t.AppendRow(table.Row{"link", "not found"})
	}
	t.Render()
	return err
}

func writeCensus(w io.Writer, body []byte) {
	doc, err := discover.Parse(body)
	if err != nil {
		fmt.Fprintf(w, "page does not parse: %v\n", err)
		return
	}
	c := discover.TakeCensus(doc)
	fmt.Fprintf(w, "report block not found\npage title: %q\ndivs with a class: %d\n", c.Title, c.ClassedDivs)
	classes := newTable(w)
	classes.AppendHeader(table.Row{"Class", "Count"})
	for _, cc := range c.ClassCounts {
		classes.AppendRow(table.Row{cc.Class, cc.Count})
	}
	classes.Render()
	keywords := newTable(w)
	keywords.AppendHeader(table.Row{"Keyword", "Text nodes"})
	for _, kc := range c.KeywordCounts {
		keywords.AppendRow(table.Row{kc.Keyword, kc.Count})
	}
	keywords.Render()
}
