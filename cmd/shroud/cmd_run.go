package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/odvcencio/shroud/pkg/module"
	"github.com/odvcencio/shroud/pkg/project"
)

const (
	reportText = "report.txt"
	reportYAML = "report.yaml"
)

func newRunCmd() *cobra.Command {
	var (
		output     string
		seed       uint64
		signKey    string
		sign       bool
		writeYAML  bool
		noRename   bool
		noHide     bool
		noScramble bool
	)

	cmd := &cobra.Command{
		Use:   "run [descriptor]",
		Short: "Obfuscate the modules a project descriptor names",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := project.DefaultDescriptor
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := project.LoadConfig(path)
			if err != nil {
				return err
			}
			if output != "" {
				abs, err := filepath.Abs(output)
				if err != nil {
					return fmt.Errorf("resolve output: %w", err)
				}
				cfg.Output = abs
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if noRename {
				cfg.Options.Rename = false
			}
			if noHide {
				cfg.Options.HideConstants = false
			}
			if noScramble {
				cfg.Options.ScrambleFlow = false
			}

			var signer imageSigner
			if sign || signKey != "" {
				s, keyPath, err := newSSHImageSigner(signKey)
				if err != nil {
					return err
				}
				signer = s
				fmt.Fprintf(cmd.ErrOrStderr(), "signing with %s\n", keyPath)
			}

			p, err := project.New(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := p.Load(); err != nil {
				return err
			}
			res, err := p.Run()
			if err != nil {
				return err
			}
			paths, err := p.Save(cfg.Output)
			if err != nil {
				return err
			}

			var text bytes.Buffer
			if err := res.Report.WriteText(&text); err != nil {
				return err
			}
			if err := module.WriteAtomic(filepath.Join(cfg.Output, reportText), text.Bytes()); err != nil {
				return err
			}
			if writeYAML {
				doc, err := res.Report.YAML()
				if err != nil {
					return err
				}
				if err := module.WriteAtomic(filepath.Join(cfg.Output, reportYAML), doc); err != nil {
					return err
				}
			}
			if signer != nil {
				for _, path := range paths {
					if err := signImage(path, signer); err != nil {
						return err
					}
				}
			}

			printRunSummary(cmd.OutOrStdout(), res, paths)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory (overrides the descriptor)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed; 0 draws one from the system")
	cmd.Flags().BoolVar(&sign, "sign", false, "sign written images with the default SSH key")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "SSH private key used to sign written images")
	cmd.Flags().BoolVar(&writeYAML, "report-yaml", false, "also write the rename audit as "+reportYAML)
	cmd.Flags().BoolVar(&noRename, "no-rename", false, "skip the rename pass")
	cmd.Flags().BoolVar(&noHide, "no-hide", false, "skip constant hiding")
	cmd.Flags().BoolVar(&noScramble, "no-scramble", false, "skip control-flow scrambling")
	return cmd
}

// signImage writes a detached signature beside the image at path.
func signImage(path string, sign imageSigner) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("sign %s: %w", path, err)
	}
	sig, err := sign(module.SigningPayload(filepath.Base(path), data))
	if err != nil {
		return fmt.Errorf("sign %s: %w", path, err)
	}
	return module.WriteAtomic(path+SigExt, []byte(sig+"\n"))
}

func printRunSummary(w io.Writer, res *project.Result, paths []string) {
	counts := res.Report.Counts()
	strs, nums := 0, 0
	for _, h := range res.Hidden {
		strs += h.Strings
		nums += h.Numbers
	}
	for _, path := range paths {
		fmt.Fprintf(w, "%s %s\n", paint(w, colorGreen, "wrote"), path)
	}
	fmt.Fprintf(w, "renamed %s, skipped %d, scrambled %d method(s), hid %d string(s) and %d number(s)\n",
		paint(w, colorBold, fmt.Sprint(counts.Renamed)), counts.Skipped, res.Scrambled, strs, nums)
}

const (
	colorBold  = "1"
	colorGreen = "32"
)

// paint wraps s in an ANSI color when w is a terminal.
func paint(w io.Writer, code, s string) string {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return s
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return s
	}
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}
