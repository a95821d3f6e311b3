package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	log     = logrus.StandardLogger()
)

var rootCmd = &cobra.Command{
	Use:           "gocab",
	Short:         "gocab inspects, extracts, creates and searches Microsoft Cabinet files",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// openInput opens path for reading, translating a missing file into the
// CLI's documented "File does not exist" message (spec.md §6).
func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotExist(path)
		}
		return nil, err
	}
	return f, nil
}
