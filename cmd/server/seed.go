package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newSeedCmd(root *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load subject records from a YAML file into the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return errors.New("seed requires STORAGE_DRIVER=postgres; use serve --seed for the in-memory store")
			}
			cfg.Storage.SeedFile = ""

			a, err := newApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.close()
			return a.seed(cmd.Context(), file)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "seed YAML file")
	return cmd
}
