package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	putFields []string
	putJSON   string
	putID     string
)

var putCmd = &cobra.Command{
	Use:   "put [index]",
	Short: "Index a single document",
	Long: `Index one document built from --field pairs or a JSON object. Without --id
the store generates the document id.

Examples:
  sheetdex put clients --field nombre=Ana --field provincia=Heredia
  sheetdex put clients --id 17 --json '{"nombre":"Ana","activo":"true"}'`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		doc, err := parseDocument(putFields, putJSON)
		if err != nil {
			return err
		}

		index := indexOrDefault(firstArg(args))
		client := newStore()
		defer client.Close()

		id := putID
		if id == "" {
			id, err = client.IndexDocument(ctx, index, doc)
		} else {
			err = client.IndexDocumentWithID(ctx, index, id, doc)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: indexed document %s\n", index, id)
		return nil
	},
}

func init() {
	putCmd.Flags().StringArrayVar(&putFields, "field", nil, "Field as name=value (repeatable)")
	putCmd.Flags().StringVar(&putJSON, "json", "", "Document as a JSON object")
	putCmd.Flags().StringVar(&putID, "id", "", "Document id (default: generated)")
}

// parseDocument merges a JSON object with name=value pairs; pairs win.
func parseDocument(fields []string, raw string) (map[string]any, error) {
	doc := make(map[string]any)
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("invalid --json: %w", err)
		}
	}
	for _, f := range fields {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --field %q: want name=value", f)
		}
		doc[name] = value
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("document is empty: pass --field or --json")
	}
	return doc, nil
}
