package cmd

import (
	"fmt"

	"github.com/gitter-badger/urfiles/internal/rest"
	"github.com/spf13/cobra"
)

var openapiCmd = &cobra.Command{
	Use:    "openapi",
	Short:  "Prints the OpenAPI document of the HTTP API",
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := rest.GenerateOpenAPISpec()
		if err != nil {
			return fmt.Errorf("failed to generate OpenAPI spec: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), spec)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(openapiCmd)
}
