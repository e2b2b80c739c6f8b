package main

import (
	"fmt"
	"os"

	"fjacquet/invoice-import/cmd/importcmd"
	"fjacquet/invoice-import/cmd/root"
	"fjacquet/invoice-import/cmd/serve"
)

func init() {
	root.Cmd.AddCommand(serve.Cmd)
	root.Cmd.AddCommand(importcmd.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
