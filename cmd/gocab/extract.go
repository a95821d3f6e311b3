package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var (
	extractSalvage        bool
	extractFixMSZIP        bool
	extractPreservePaths   bool
	extractSetTimestamps   bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file> [output_dir]",
	Short: "extract every file in a cabinet",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir := "."
		if len(args) == 2 {
			outDir = args[1]
		}

		f, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		opts := cabfile.Options{Salvage: extractSalvage, FixMSZIP: extractFixMSZIP, Log: log}
		c, err := cabfile.Parse(f, opts)
		if err != nil {
			if errors.Is(err, cabfile.ErrInvalidSignature) {
				return errCannotDetect(args[0])
			}
			return err
		}

		ext := cabfile.NewExtractor(c, opts)
		for _, file := range c.Files {
			if file.IsContinuation() {
				continue
			}
			name := filepath.Base(file.Name)
			if extractPreservePaths {
				name = filepath.FromSlash(file.Name)
			}
			dest := filepath.Join(outDir, name)
			if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
				return err
			}

			out, err := os.Create(dest)
			if err != nil {
				return err
			}
			err = ext.Extract(file, out)
			out.Close()
			if err != nil {
				if opts.Salvage {
					log.Warnf("extract %q: %v", file.Name, err)
					continue
				}
				return errors.Wrapf(err, "extract %q", file.Name)
			}

			if err := cabfile.ApplyMetadata(dest, file, extractSetTimestamps, true); err != nil {
				log.Warnf("apply metadata to %q: %v", file.Name, err)
			}
			if verbose {
				fmt.Println(dest)
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractSalvage, "salvage", false, "tolerate corrupt blocks and continue")
	extractCmd.Flags().BoolVar(&extractFixMSZIP, "fix-mszip", false, "zero-pad MSZIP frames whose inflation fails instead of failing")
	extractCmd.Flags().BoolVar(&extractPreservePaths, "preserve-paths", true, "preserve directory structure from cabinet filenames")
	extractCmd.Flags().BoolVar(&extractSetTimestamps, "set-timestamps", true, "set extracted file timestamps from the cabinet")
	rootCmd.AddCommand(extractCmd)
}
