package main

import (
	"github.com/spf13/cobra"

	"github.com/zostay/go-mailpart/cmd/mailpart/cmd"
)

func main() {
	err := cmd.Execute()
	cobra.CheckErr(err)
}
