package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var searchCmd = &cobra.Command{
	Use:   "search <file>",
	Short: "locate embedded cabinets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		head, err := cabfile.Search(f, 0, cabfile.Options{Log: log})
		if err != nil {
			return err
		}
		if head == nil {
			fmt.Println("no cabinets found")
			return nil
		}
		n := 0
		for c := head; c != nil; c = c.Next {
			n++
			fmt.Printf("cabinet %d: offset %d, %d bytes, %d files\n", n, c.BaseOffset, c.Length, len(c.Files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)
}
