// Command slskcored runs the Soulseek peer-connection-fabric daemon:
// server link, connection fabric, and dispatcher wired together, with a
// small console for inspecting live state.
package main

import (
	"fmt"
	"os"

	"gopkg.in/urfave/cli.v1"

	"github.com/oknozor/vessel-sub000/slsklog"
)

var app = cli.NewApp()

func init() {
	app.Name = "slskcored"
	app.Usage = "Soulseek peer-connection-fabric daemon"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		runCommand,
		peersCommand,
		downloadsCommand,
		loginCommand,
		consoleCommand,
	}
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "path to the TOML configuration file",
			Value: "slskcored.toml",
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		slsklog.Error("fatal", "err", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
