package main

import (
	"os"

	"github.com/matrixise/survey-gate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
