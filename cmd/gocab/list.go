package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var listCmd = &cobra.Command{
	Use:   "list <file>",
	Short: "display files and folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		c, err := cabfile.Parse(f, cabfile.Options{Log: log})
		if err != nil {
			if errors.Is(err, cabfile.ErrInvalidSignature) {
				return errCannotDetect(args[0])
			}
			return err
		}

		for i, folder := range c.Folders {
			fmt.Printf("folder %d: %d blocks, method %d\n", i, folder.BlockCount, folder.Method())
		}
		for _, file := range c.Files {
			fmt.Printf("%s\t%d bytes\t%s\n", file.Name, file.Length, file.ModTime().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
