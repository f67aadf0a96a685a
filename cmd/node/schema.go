package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type schemaTable struct {
	Name    string   `json:"name" yaml:"name"`
	Columns []string `json:"columns" yaml:"columns"`
}

type schemaKeyspace struct {
	Name   string        `json:"name" yaml:"name"`
	Tables []schemaTable `json:"tables" yaml:"tables"`
}

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect a running node's schema",
	}
	cmd.AddCommand(newSchemaDumpCmd())
	return cmd
}

func newSchemaDumpCmd() *cobra.Command {
	var debugListen string
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Fetch a running node's schema from its debug endpoint and print it as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dumpSchema(cmd.OutOrStdout(), debugListen)
		},
	}
	cmd.Flags().StringVar(&debugListen, "debug-listen", "127.0.0.1:9143", "address of the node's debug HTTP server")
	return cmd
}

func dumpSchema(out io.Writer, debugListen string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/debug/schema", debugListen))
	if err != nil {
		return fmt.Errorf("fetching schema: %w", err)
	}
	defer resp.Body.Close()

	var keyspaces []schemaKeyspace
	if err := json.NewDecoder(resp.Body).Decode(&keyspaces); err != nil {
		return fmt.Errorf("decoding schema response: %w", err)
	}

	enc := yaml.NewEncoder(out)
	defer enc.Close()
	return enc.Encode(keyspaces)
}
