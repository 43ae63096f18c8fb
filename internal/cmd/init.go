package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/avtomon/wsChat/internal/wizard"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard to generate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			defaults, _ := cmd.Flags().GetBool("defaults")
			force, _ := cmd.Flags().GetBool("force")

			if !defaults {
				return wizard.New(wizard.DefaultPrompter()).Run(output)
			}

			if output == "" {
				output = defaultConfigPath
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}
			cfg, err := wizard.Defaults()
			if err != nil {
				return err
			}
			if err := wizard.Write(cfg, output); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Config written to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output config file path (default: ./wschat.json)")
	cmd.Flags().Bool("defaults", false, "generate config non-interactively with a fresh secret and local defaults")
	cmd.Flags().Bool("force", false, "overwrite an existing file with --defaults")
	return cmd
}
