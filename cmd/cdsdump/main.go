// cdsdump builds and inspects shared-class archives.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jvmshare/cds/pkg/archive"
	"github.com/jvmshare/cds/pkg/cds"
)

func main() {
	root := &cobra.Command{
		Use:           "cdsdump",
		Short:         "Build and inspect shared-class archives",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newDumpCmd(), newInfoCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newDumpCmd() *cobra.Command {
	var (
		classlist string
		classpath string
		output    string
		dynamic   bool
		base      string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Build an archive from a classlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			if base != "" {
				if !dynamic {
					return fmt.Errorf("--base requires --dynamic")
				}
				if err := checkBaseArchive(base); err != nil {
					return err
				}
			}

			f, err := os.Open(classlist)
			if err != nil {
				return err
			}
			defer f.Close()

			entries, err := cds.ParseClasslist(f)
			if err != nil {
				return err
			}

			dumper := cds.NewDumper(splitClasspath(classpath))
			if err := dumper.ProcessClasslist(entries); err != nil {
				return err
			}

			kind := cds.StaticLayer
			if dynamic {
				kind = cds.DynamicLayer
			}
			payload, err := dumper.WriteToArchive(kind)
			if err != nil {
				return err
			}
			if err := archive.WriteFile(output, payload); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s archive %s (%d bytes)\n", kind, output, len(payload))
			dumper.PrintTableStatistics(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&classlist, "classlist", "", "classlist file describing the classes to archive")
	cmd.Flags().StringVar(&classpath, "classpath", "", "classpath entries (directories or jars, ':'-separated)")
	cmd.Flags().StringVarP(&output, "output", "o", "classes.gcds", "archive file to write")
	cmd.Flags().BoolVar(&dynamic, "dynamic", false, "write a dynamic (top) layer instead of a static one")
	cmd.Flags().StringVar(&base, "base", "", "static archive this dynamic layer will be used with")
	cmd.MarkFlagRequired("classlist")
	return cmd
}

// checkBaseArchive verifies that the named file is a mappable static
// layer before a dynamic dump proceeds.
func checkBaseArchive(path string) error {
	m, err := archive.Map(path)
	if err != nil {
		return err
	}
	defer m.Close()

	layer, err := cds.ReadDictionaries(m.Data)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if layer.Kind != cds.StaticLayer {
		return fmt.Errorf("%s is a %s layer, not a static base archive", path, layer.Kind)
	}
	return nil
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>...",
		Short: "Print the contents of one or two archive layers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var layers []*cds.ArchiveLayer
			for _, path := range args {
				m, err := archive.Map(path)
				if err != nil {
					return err
				}
				defer m.Close()

				layer, err := cds.ReadDictionaries(m.Data)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(path), err)
				}
				layers = append(layers, layer)
			}

			rt, err := cds.NewSharedRuntime(layers)
			if err != nil {
				return err
			}
			rt.PrintTableStatistics(cmd.OutOrStdout())
			return nil
		},
	}
}

func splitClasspath(cp string) []string {
	if cp == "" {
		return nil
	}
	return strings.Split(cp, string(os.PathListSeparator))
}
