package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ait-main/src/internal/gateway"
)

type exportDoc struct {
	Dims        int             `json:"dims" yaml:"dims"`
	NextRank    uint32          `json:"next_rank" yaml:"next_rank"`
	LastID      string          `json:"last_id,omitempty" yaml:"last_id,omitempty"`
	Experiences []experienceRow `json:"experiences" yaml:"experiences"`
}

func buildExport(gw *gateway.Gateway, withEmbeddings bool) exportDoc {
	doc := exportDoc{
		Dims:        gw.History.Dims(),
		NextRank:    gw.History.NextRank(),
		Experiences: []experienceRow{},
	}
	if last, ok := gw.History.LastID(); ok {
		doc.LastID = last.String()
	}
	for _, e := range gw.History.Recent(gw.History.Len()) {
		row := toRow(gw, e)
		if withEmbeddings {
			row.Embedding = e.Embedding
		}
		doc.Experiences = append(doc.Experiences, row)
	}
	return doc
}

func writeExport(w io.Writer, doc exportDoc, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	return fmt.Errorf("unknown export format %q (want yaml or json)", format)
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every experience in rank order",
		Long: `Export the whole memory as a readable document.

Examples:
  ait export                         # YAML to stdout
  ait export --format json -o m.json # JSON to a file
  ait export --embeddings            # include the vectors`,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			withEmbeddings, _ := cmd.Flags().GetBool("embeddings")
			if jsonOutput(cmd) {
				format = "json"
			}

			gw, err := openGateway(cmd)
			if err != nil {
				return err
			}
			defer closeGateway(gw)

			doc := buildExport(gw, withEmbeddings)
			if output == "" {
				return writeExport(cmd.OutOrStdout(), doc, format)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer f.Close()
			if err := writeExport(f, doc, format); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d experiences to %s\n", len(doc.Experiences), output)
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "yaml", "Output format: yaml or json")
	cmd.Flags().StringP("output", "o", "", "Write to a file instead of stdout")
	cmd.Flags().Bool("embeddings", false, "Include embedding vectors")
	return cmd
}
