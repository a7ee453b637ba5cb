package main

import (
	"github.com/hmaster20/winsync/cmd"
	"github.com/hmaster20/winsync/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
