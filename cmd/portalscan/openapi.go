package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/narworks/muhasebe-asistani-sub000/internal/http/routes"
)

var (
	openapiOutput  string
	openapiYAML    bool
	openapiBaseURL string
)

// openapiCmd renders the API description from the route definitions with
// stub handlers, so it needs no configuration or database.
var openapiCmd = &cobra.Command{
	Use:   "openapi",
	Short: "Print the OpenAPI document",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {},
	RunE: func(cmd *cobra.Command, _ []string) error {
		api := humachi.New(chi.NewRouter(), routes.NewHumaConfig(openapiBaseURL))
		routes.RegisterDocs(api, routes.StubHandlers())
		doc := api.OpenAPI()

		var data []byte
		var err error
		if openapiYAML {
			data, err = yaml.Marshal(doc)
		} else {
			data, err = json.MarshalIndent(doc, "", "  ")
		}
		if err != nil {
			return fmt.Errorf("failed to marshal OpenAPI document: %w", err)
		}

		if openapiOutput == "" {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		if err := os.WriteFile(openapiOutput, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", openapiOutput, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "OpenAPI document written to %s\n", openapiOutput)
		return nil
	},
}

func init() {
	openapiCmd.Flags().StringVarP(&openapiOutput, "output", "o", "", "Output file (default: stdout)")
	openapiCmd.Flags().BoolVar(&openapiYAML, "yaml", false, "Output YAML instead of JSON")
	openapiCmd.Flags().StringVar(&openapiBaseURL, "base-url", "http://localhost:8090", "Server URL in the document")
	rootCmd.AddCommand(openapiCmd)
}
