// Package main is the entry point for the tunerd application.
package main

import (
	"os"

	"github.com/sanshiro-tv/tunerd/cmd/tunerd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
