// Command gocab inspects, extracts, creates and searches for Microsoft
// Cabinet (.cab) container files.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.StandardLogger().Error(err)
		os.Exit(1)
	}
}
