package main

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/google/gocab/cabfile"
)

var (
	createCompression string
	createSetID       uint16
	createIndex       uint16
)

var createCmd = &cobra.Command{
	Use:   "create <output> <file...>",
	Short: "author a new cabinet",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := args[0]
		var files []cabfile.NewFile
		for _, path := range args[1:] {
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					return errNotExist(path)
				}
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			files = append(files, cabfile.NewFile{
				Name:    filepath.Base(path),
				Data:    data,
				ModTime: info.ModTime(),
			})
		}

		// Write to a scratch file beside the destination, named with a
		// random UUID so concurrent `create` runs never collide, and
		// rename into place only once the cabinet is fully written: a
		// failed Create (bad compression name, write error) never leaves
		// a truncated file at the requested output path.
		scratch := filepath.Join(filepath.Dir(output), "."+uuid.NewString()+".tmp")
		out, err := os.Create(scratch)
		if err != nil {
			return err
		}

		createErr := cabfile.Create(out, files, cabfile.CreateOptions{
			Compression:  createCompression,
			SetID:        createSetID,
			CabinetIndex: createIndex,
		})
		closeErr := out.Close()
		if createErr != nil {
			os.Remove(scratch)
			return createErr
		}
		if closeErr != nil {
			os.Remove(scratch)
			return closeErr
		}
		return os.Rename(scratch, output)
	},
}

func init() {
	createCmd.Flags().StringVar(&createCompression, "compression", "none", "compression method: none, mszip, lzx")
	createCmd.Flags().Uint16Var(&createSetID, "set-id", 0, "multi-part set id")
	createCmd.Flags().Uint16Var(&createIndex, "cabinet-index", 0, "this cabinet's index within its set")
	rootCmd.AddCommand(createCmd)
}
