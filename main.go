package main

import (
	"os"

	"github.com/ibroh-tech/Omonat-bot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
