package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var testCmd = &cobra.Command{
	Use:   "test <file>",
	Short: "parse and dry-run decode every block, reporting the first error",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		opts := cabfile.Options{Log: log}
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
			if err := ext.Extract(file, io.Discard); err != nil {
				return errors.Wrapf(err, "%s", file.Name)
			}
		}
		fmt.Printf("OK: %d files, %d folders\n", len(c.Files), len(c.Folders))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
