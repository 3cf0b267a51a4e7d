package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobstanton/vaultquery/internal/plan"
	"github.com/bobstanton/vaultquery/internal/preview"
	"github.com/bobstanton/vaultquery/internal/ui"
)

var previewCmd = &cobra.Command{
	Use:   "preview <sql>",
	Short: "Dry-run a mutation and show its effect",
	Long: `Execute a mutation inside a savepoint that is always rolled back,
and show the rows it would change plus the text edits that applying it would
make to the source documents. Nothing is modified.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := mustEnv()
		defer e.close()

		p, err := e.previews.Preview(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printPreview(p)

		editPlan, err := e.syncer.Plan(p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error planning edits: %v\n", err)
			os.Exit(1)
		}
		printEditPlan(editPlan)
	},
}

func printPreview(p *preview.Preview) {
	for _, leaf := range p.Flatten() {
		fmt.Printf("%s %s on %s: %d row(s)\n",
			ui.RenderAccent("»"), leaf.Op, leaf.Table, affectedCount(leaf))
		switch leaf.Op {
		case preview.OpInsert:
			for _, row := range leaf.After {
				fmt.Printf("   + %s\n", ui.RenderPass(compactRow(row)))
			}
		case preview.OpDelete:
			for _, row := range leaf.Before {
				fmt.Printf("   - %s\n", ui.RenderFail(compactRow(row)))
			}
		case preview.OpUpdate:
			for i, after := range leaf.After {
				if i < len(leaf.Before) && leaf.Before[i] != nil {
					fmt.Printf("   ~ %s\n", ui.RenderDiff(compactRow(leaf.Before[i]), compactRow(after)))
				} else {
					fmt.Printf("   ~ %s\n", compactRow(after))
				}
			}
		}
	}
}

func printEditPlan(p *plan.EditPlan) {
	if len(p.Edits) == 0 && len(p.Warnings) == 0 {
		fmt.Println(ui.RenderFaint("no text edits"))
		return
	}
	for _, e := range p.Edits {
		fmt.Printf("%s %s: %s\n", ui.RenderAccent("✎"), e.Path, e.Reason)
	}
	for _, w := range p.Warnings {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
	}
}

func affectedCount(p *preview.Preview) int {
	if n := len(p.After); n > 0 {
		return n
	}
	return len(p.Before)
}

// compactRow renders a row as "col=value" pairs in column order, skipping
// empty values to keep the line readable.
func compactRow(row preview.RowMap) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		v := row[k]
		if v == nil || v == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}
