package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sheetdex/sheetdex/pkg/sheet"
	"github.com/sheetdex/sheetdex/pkg/store"
	"github.com/sheetdex/sheetdex/pkg/tui"
)

var (
	searchText   string
	searchField  string
	searchSize   int
	searchExport string

	indicesAll bool

	chartGroup   string
	chartValue   string
	chartByMonth bool
	chartSize    int
	chartWidth   int
)

var countCmd = &cobra.Command{
	Use:   "count [index]",
	Short: "Print the number of documents in an index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		index := indexOrDefault(firstArg(args))
		client := newStore()
		defer client.Close()

		n, err := client.Count(ctx, index)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d documents\n", index, n)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [index]",
	Short: "Search an index and print or export the hits",
	Long: `Search an index. Without -q every document matches. With --field the text is
matched against that field only; otherwise it is a query_string over all fields.

Examples:
  sheetdex search sales -q "Juan"
  sheetdex search sales -q Heredia --field provincia --size 50
  sheetdex search sales --size 1000 --export resultados.xlsx`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "List indices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		client := newStore()
		defer client.Close()

		names, err := client.ListIndices(ctx, "")
		if err != nil {
			return err
		}
		if !indicesAll {
			names = store.UserIndices(names)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [index]",
	Short: "Show cluster information, or document count and aliases of an index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		client := newStore()
		defer client.Close()

		if len(args) == 0 {
			info, err := client.Ping(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Addresses: %s\n", strings.Join(client.Addresses(), ", "))
			fmt.Printf("Cluster:   %s (%s)\n", info.ClusterName, info.Name)
			fmt.Printf("Version:   %s (lucene %s)\n", info.Version, info.LuceneVersion)
			return nil
		}

		info, err := client.IndexInfo(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Index:     %s\n", info.Name)
		fmt.Printf("Documents: %d\n", info.DocCount)
		if len(info.Aliases) > 0 {
			fmt.Printf("Aliases:   %s\n", strings.Join(info.Aliases, ", "))
		}
		return nil
	},
}

var chartCmd = &cobra.Command{
	Use:   "chart [index]",
	Short: "Draw a bar chart of a value summed per group",
	Long: `Fetch documents and draw the top groups by the sum of a numeric field.

Examples:
  sheetdex chart ventas --group producto --value total
  sheetdex chart ventas --group fecha --value total --by-month`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChart,
}

func init() {
	searchCmd.Flags().StringVarP(&searchText, "query", "q", "", "Text to search for")
	searchCmd.Flags().StringVar(&searchField, "field", "", "Restrict the search to one field")
	searchCmd.Flags().IntVar(&searchSize, "size", store.DefaultSearchSize, "Maximum number of hits")
	searchCmd.Flags().StringVar(&searchExport, "export", "", "Write the hits to this .xlsx file instead of printing")

	indicesCmd.Flags().BoolVar(&indicesAll, "all", false, "Include system indices")

	chartCmd.Flags().StringVar(&chartGroup, "group", "", "Field to group by (required)")
	chartCmd.Flags().StringVar(&chartValue, "value", "", "Numeric field to sum (required)")
	chartCmd.Flags().BoolVar(&chartByMonth, "by-month", false, "Treat the group field as a date and group by month")
	chartCmd.Flags().IntVar(&chartSize, "size", 1000, "Documents to fetch")
	chartCmd.Flags().IntVar(&chartWidth, "width", 40, "Width of the longest bar")
	chartCmd.MarkFlagRequired("group")
	chartCmd.MarkFlagRequired("value")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	index := indexOrDefault(firstArg(args))
	client := newStore()
	defer client.Close()

	hits, err := client.Search(ctx, index, store.Query{Text: searchText, Field: searchField, Size: searchSize})
	if err != nil {
		return err
	}

	if searchExport != "" {
		if err := sheet.ExportHits(searchExport, hits); err != nil {
			return err
		}
		fmt.Printf("Exported %d hits to %s\n", len(hits), searchExport)
		return nil
	}

	if len(hits) == 0 {
		fmt.Println("No documents found")
		return nil
	}
	fmt.Println(tui.RenderDocuments(hits, nil))
	fmt.Printf("%d hits\n", len(hits))
	return nil
}

func runChart(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	index := indexOrDefault(firstArg(args))
	client := newStore()
	defer client.Close()

	hits, err := client.Search(ctx, index, store.Query{Size: chartSize})
	if err != nil {
		return err
	}

	bars := tui.GroupSum(hits, chartGroup, chartValue, chartByMonth)
	title := fmt.Sprintf("%s by %s", chartValue, chartGroup)
	if chartByMonth {
		title += " (month)"
	}
	fmt.Println(tui.RenderBarChart(title, bars, chartWidth))
	return nil
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
