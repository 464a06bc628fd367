// Command bloomindex builds, dumps, restores and searches bloom filter
// indexes of text files.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/bloom-index/cmd/bloomindex/cmd"
	"github.com/Adithya-Monish-Kumar-K/bloom-index/pkg/logger"
)

func main() {
	// Replaced once the config is loaded.
	logger.Setup("info", "text")
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
