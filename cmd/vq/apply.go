package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bobstanton/vaultquery/internal/ui"
)

var applyYes bool

var applyCmd = &cobra.Command{
	Use:   "apply <sql>",
	Short: "Apply a mutation to the index and the source documents",
	Long: `Preview the mutation, ask for confirmation, then execute it for real
and write the resulting text edits back to the source documents. Documents
are updated independently; per-file failures are reported as warnings.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := mustEnv()
		defer e.close()

		ctx := context.Background()
		p, err := e.previews.Preview(ctx, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printPreview(p)

		if !applyYes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				fmt.Fprintf(os.Stderr, "Error: refusing to apply without confirmation; pass --yes\n")
				os.Exit(1)
			}
			confirmed := false
			form := huh.NewForm(huh.NewGroup(
				huh.NewConfirm().
					Title("Apply this mutation?").
					Description("The index and the source documents will be modified.").
					Value(&confirmed),
			))
			if err := form.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if !confirmed {
				fmt.Println(ui.RenderFaint("aborted"))
				return
			}
		}

		res, err := e.syncer.Apply(ctx, p)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		// Re-index the touched documents so positions reflect the new text.
		for _, path := range res.AffectedPaths {
			if err := e.idx.SyncPath(ctx, path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to re-index %s: %v\n", path, err)
			}
		}

		fmt.Printf("%s Applied; %d document(s) updated\n", ui.RenderPass("✓"), len(res.AffectedPaths))
		for _, path := range res.AffectedPaths {
			fmt.Printf("   %s\n", path)
		}
		for _, w := range res.Warnings {
			fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), w)
		}
	},
}

func init() {
	applyCmd.Flags().BoolVarP(&applyYes, "yes", "y", false, "apply without interactive confirmation")
}
