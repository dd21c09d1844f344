package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/odvcencio/shroud/pkg/discover"
	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/project"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a project descriptor listing the module images under path",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			target := filepath.Join(abs, project.DefaultDescriptor)
			if _, err := os.Stat(target); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", target)
			}

			images, err := discover.Images(abs)
			if err != nil {
				return fmt.Errorf("discover images: %w", err)
			}
			if len(images) == 0 {
				return fmt.Errorf("no module images under %s", abs)
			}

			on := true
			d := &project.Descriptor{
				Output: "obfuscated",
				Options: project.OptionsDoc{
					Rename:        &on,
					HideConstants: &on,
					ScrambleFlow:  &on,
					NamePolicy:    "dense",
					OverrideMatch: "name",
				},
			}
			for _, img := range images {
				d.Modules = append(d.Modules, project.ModuleDescriptor{File: img})
			}

			var buf bytes.Buffer
			if err := d.WriteTOML(&buf); err != nil {
				return err
			}
			if err := module.WriteAtomic(target, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s with %d module(s)\n", target, len(images))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing descriptor")
	return cmd
}
