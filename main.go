package main

import (
	"fmt"
	"os"

	"dzs/taxi-etl/cmd/extract"
	"dzs/taxi-etl/cmd/load"
	"dzs/taxi-etl/cmd/reconcile"
	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/cmd/serve"
	"dzs/taxi-etl/cmd/tables"
)

func init() {
	root.Init()

	root.Cmd.AddCommand(extract.Cmd)
	root.Cmd.AddCommand(load.Cmd)
	root.Cmd.AddCommand(reconcile.Cmd)
	root.Cmd.AddCommand(tables.Cmd)
	root.Cmd.AddCommand(serve.Cmd)
}

func main() {
	if err := root.Cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
