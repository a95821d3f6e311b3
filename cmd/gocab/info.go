package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "show cabinet metadata",
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

		fmt.Printf("length:        %d bytes\n", c.Length)
		fmt.Printf("set id:        %d\n", c.SetID)
		fmt.Printf("set index:     %d\n", c.SetIndex)
		fmt.Printf("has reserve:   %v\n", c.HasReserve)
		fmt.Printf("folders:       %d\n", len(c.Folders))
		fmt.Printf("files:         %d\n", len(c.Files))
		if c.PrevName != "" {
			fmt.Printf("prev cabinet:  %s (%s)\n", c.PrevName, c.PrevInfo)
		}
		if c.NextName != "" {
			fmt.Printf("next cabinet:  %s (%s)\n", c.NextName, c.NextInfo)
		}

		methods := map[int]bool{}
		for _, folder := range c.Folders {
			methods[folder.Method()] = true
		}
		fmt.Print("compression:   ")
		for m := range methods {
			fmt.Printf("%s ", methodName(m))
		}
		fmt.Println()
		return nil
	},
}

func methodName(m int) string {
	switch m {
	case cabfile.CompressNone:
		return "none"
	case cabfile.CompressMSZIP:
		return "mszip"
	case cabfile.CompressQuantum:
		return "quantum"
	case cabfile.CompressLZX:
		return "lzx"
	default:
		return fmt.Sprintf("unknown(%d)", m)
	}
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
