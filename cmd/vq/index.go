package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bobstanton/vaultquery/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the relational index from the vault",
	Long: `Walk the vault and rebuild every document's relational image: tasks,
headings, list items, table cells, frontmatter properties, tags and links.
Documents removed from disk are pruned from the index.`,
	Run: func(cmd *cobra.Command, args []string) {
		e := mustEnv()
		defer e.close()

		fmt.Printf("%s Indexing %s...\n", ui.RenderAccent("→"), e.cfg.VaultRoot)
		stats, err := e.idx.FullSync(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error during indexing: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Indexed %d notes in %v\n", ui.RenderPass("✓"), stats.Notes, stats.Elapsed.Round(time.Millisecond))
		fmt.Printf("   Tasks:      %d\n", stats.Tasks)
		fmt.Printf("   Headings:   %d\n", stats.Headings)
		fmt.Printf("   List items: %d\n", stats.ListItems)
		fmt.Printf("   Cells:      %d\n", stats.Cells)
		fmt.Printf("   Properties: %d\n", stats.Properties)
		fmt.Printf("   Tags:       %d\n", stats.Tags)
		fmt.Printf("   Links:      %d\n", stats.Links)
	},
}
