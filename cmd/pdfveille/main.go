// Command pdfveille serves keyword search over the PDF documents of a
// publication feed.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
