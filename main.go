package main

import (
	"os"

	"leadscore-backtest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
