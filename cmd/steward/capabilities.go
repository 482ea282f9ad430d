package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/steward-ai/steward/internal/capability"
	"github.com/steward-ai/steward/internal/capability/builtins"
)

var capabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "List the available capabilities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		catalog := capability.NewRegistry()
		builtins.RegisterBuiltins(catalog)

		for _, d := range catalog.Descriptors() {
			fmt.Printf("%s\n  %s\n", d.Name, d.Description)
			params := make([]string, 0, len(d.ParameterSchema))
			for name := range d.ParameterSchema {
				params = append(params, name)
			}
			sort.Strings(params)
			for _, name := range params {
				fmt.Printf("    %s: %s\n", name, d.ParameterSchema[name])
			}
		}
		return nil
	},
}
