package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	ge "github.com/mimiro-io/grade-export"
	"github.com/mimiro-io/grade-export/encoder"
	"github.com/mimiro-io/grade-export/export"
)

var exportFlags struct {
	name   string
	course int64
	group  int64
	out    string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the grades of a course to a file",
	Long: `Write the grades of a course using one of the configured export definitions.
The file is named after the course unless --out is given, use --out - for stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		core, err := loadCore()
		if err != nil {
			return err
		}
		def := core.Config.GetExportDefinition(exportFlags.name)
		if def == nil {
			return ge.Errorf(ge.LayerErrorNotFound, "no export definition named %q", exportFlags.name)
		}

		ctx := cmd.Context()
		source, db, err := openSource(ctx, core)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, db.Close())
		}()

		course, err := source.Course(ctx, exportFlags.course)
		if err != nil {
			return err
		}
		items, err := source.GradeItems(ctx, exportFlags.course)
		if err != nil {
			return err
		}

		exporter := export.NewExporter(source, def, core.Config.GradebookConfig, core.Logger, core.Metrics)
		out := exportFlags.out
		if out == "" {
			out = exporter.FileName(course)
		}
		var sink io.WriteCloser
		if out == "-" {
			sink = encoder.NopCloser(os.Stdout)
		} else {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			sink = f
		}

		rows, err := exporter.Export(ctx, course, items, exportFlags.group, sink)
		if err != nil {
			if out != "-" {
				_ = os.Remove(out)
			}
			return err
		}
		if out != "-" {
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d users to %s\n", rows, out)
		}
		return nil
	},
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVar(&exportFlags.name, "export", "", "name of the export definition")
	flags.Int64Var(&exportFlags.course, "course", 0, "course id")
	flags.Int64Var(&exportFlags.group, "group", 0, "only export members of this group")
	flags.StringVar(&exportFlags.out, "out", "", "output file")
	_ = exportCmd.MarkFlagRequired("export")
	_ = exportCmd.MarkFlagRequired("course")
}
