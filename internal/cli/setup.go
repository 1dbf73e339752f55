package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mcoot/userdata/internal/config"
	"github.com/mcoot/userdata/internal/storage"
	"github.com/mcoot/userdata/internal/storage/seed"
)

func newSetupCmd() *cobra.Command {
	var (
		clean      bool
		schemaFile string
		seedFile   string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the global tables and apply a seed file",
		Long: `setup creates the user table and any tables declared in the schema file,
then applies the seed file. Running it again updates seeded entities in
place. With --clean, prefixed tables that are neither declared nor owned by
a registered user are dropped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, st storage.Engine, loaded *config.Config) error {
				opts := storage.SetupOptions{Clean: clean, CreateGlobals: true}

				if !flagChanged(cmd, "schema") {
					schemaFile = loaded.Setup.SchemaFile
				}
				if schemaFile != "" {
					defs, err := seed.ParseSchemaFile(schemaFile)
					if err != nil {
						return err
					}
					opts.Schema = defs
				}

				if !flagChanged(cmd, "seed") {
					seedFile = loaded.Setup.SeedFile
				}
				if seedFile != "" {
					f, err := seed.ParseFile(seedFile)
					if err != nil {
						return err
					}
					opts.Seed = f
				}

				if err := st.Setup(ctx, opts); err != nil {
					return err
				}
				output(cmd).PrintMessage("Setup complete")
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", false, "Drop stray prefixed tables")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "Table definition file (default: setup.schema_file)")
	cmd.Flags().StringVar(&seedFile, "seed", "", "Seed file (default: setup.seed_file)")

	return cmd
}
