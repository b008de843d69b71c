package main

import (
	"log"

	"github.com/BIwashi/dbcsignal/app/convert"
	"github.com/BIwashi/dbcsignal/app/inspect"
	"github.com/BIwashi/dbcsignal/app/monitor"
	"github.com/BIwashi/dbcsignal/pkg/cli"
)

func main() {
	c := cli.NewCLI(
		"dbcsignal",
		"Decode CAN frames into physical signal values using a DBC file.",
	)

	c.AddCommands(
		convert.NewCommand(),
		inspect.NewCommand(),
		monitor.NewCommand(),
	)

	if err := c.Run(); err != nil {
		log.Fatal(err)
	}
}
