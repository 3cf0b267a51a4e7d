package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bobstanton/vaultquery/internal/sqlscan"
	"github.com/bobstanton/vaultquery/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only SQL query against the index",
	Long: `Run a SELECT against the relational index and print the result as an
aligned table. Mutating statements are rejected; use 'vq preview' and
'vq apply' for those.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		statement := args[0]
		switch sqlscan.FirstKeyword(statement) {
		case "select", "with", "explain", "pragma":
		default:
			fmt.Fprintf(os.Stderr, "Error: not a read-only statement; use 'vq preview' for mutations\n")
			os.Exit(1)
		}

		e := mustEnv()
		defer e.close()

		rows, err := e.db.QueryCached(context.Background(), statement)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer rows.Close()

		header, data, err := collectRows(rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(data) == 0 {
			fmt.Println(ui.RenderFaint("no rows"))
			return
		}
		fmt.Print(ui.Table(header, data))
		fmt.Printf("%s\n", ui.RenderFaint(fmt.Sprintf("%d row(s)", len(data))))
	},
}

func collectRows(rows *sql.Rows) ([]string, [][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var data [][]string
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = renderValue(v)
		}
		data = append(data, row)
	}
	return cols, data, rows.Err()
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(t)
	case string:
		return strings.ReplaceAll(t, "\n", "\\n")
	default:
		return fmt.Sprint(t)
	}
}
