package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/oknozor/vessel-sub000/config"
	"github.com/oknozor/vessel-sub000/store"
)

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "run the daemon until interrupted",
	Action: runDaemon,
}

var peersCommand = cli.Command{
	Name:   "peers",
	Usage:  "dump the known peer directory",
	Action: dumpPeers,
}

var downloadsCommand = cli.Command{
	Name:   "downloads",
	Usage:  "show an example download-ticket lookup",
	Action: showDownload,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "user"},
		cli.IntFlag{Name: "ticket"},
	},
}

var loginCommand = cli.Command{
	Name:   "login",
	Usage:  "log in to the server and exit once the login is accepted",
	Action: loginOnly,
}

var consoleCommand = cli.Command{
	Name:   "console",
	Usage:  "run the daemon with an interactive command console",
	Action: runConsole,
}

func loadConfigFromFlag(ctx *cli.Context) (config.Config, error) {
	return config.Load(ctx.GlobalString("config"))
}

func runDaemon(ctx *cli.Context) error {
	cfg, err := loadConfigFromFlag(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	d, err := newDaemon(runCtx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	errCh := make(chan error, 2)
	go func() { errCh <- d.link.Run(runCtx) }()
	go d.dispatcher.Run(runCtx)
	go func() { errCh <- d.listenAndAccept(runCtx) }()

	select {
	case <-runCtx.Done():
		return nil
	case err := <-errCh:
		cancel()
		return err
	}
}

func loginOnly(ctx *cli.Context) error {
	cfg, err := loadConfigFromFlag(ctx)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(runCtx, cfg)
	if err != nil {
		return err
	}
	defer d.close()
	fmt.Println("login succeeded")
	return nil
}

func dumpPeers(ctx *cli.Context) error {
	cfg, err := loadConfigFromFlag(ctx)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.DataDir, cfg.Storage.CacheBytes)
	if err != nil {
		return err
	}
	defer db.Close()

	peers, err := db.ListPeers()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Username", "Address"})
	for _, p := range peers {
		table.Append([]string{p.Username, p.Address()})
	}
	table.Render()
	return nil
}

func showDownload(ctx *cli.Context) error {
	user := ctx.String("user")
	ticket := uint32(ctx.Int("ticket"))
	if user == "" {
		return fmt.Errorf("downloads: -user is required")
	}

	cfg, err := loadConfigFromFlag(ctx)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.DataDir, cfg.Storage.CacheBytes)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, ok := db.Downloads().Get(user, ticket)
	if !ok {
		return fmt.Errorf("downloads: no record for %s@%d", user, ticket)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"User", "Ticket", "Filename", "Size", "Progressed"})
	table.Append([]string{
		rec.User,
		strconv.FormatUint(uint64(rec.Ticket), 10),
		rec.Filename,
		strconv.FormatUint(rec.FileSize, 10),
		strconv.FormatUint(rec.BytesProgressed, 10),
	})
	table.Render()
	return nil
}

func runConsole(ctx *cli.Context) error {
	cfg, err := loadConfigFromFlag(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(runCtx, cfg)
	if err != nil {
		return err
	}
	defer d.close()

	go d.dispatcher.Run(runCtx)
	go d.link.Run(runCtx)
	go d.listenAndAccept(runCtx)

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("slskcored console — type 'help' for commands, 'quit' to exit")
	for {
		input, err := line.Prompt("slskcored> ")
		if err != nil {
			break
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if !runConsoleCommand(d, input) {
			break
		}
	}
	return nil
}

func runConsoleCommand(d *daemon, input string) bool {
	fields := strings.Fields(input)
	switch fields[0] {
	case "quit", "exit":
		return false
	case "help":
		fmt.Println("commands: search <query>, status, quit")
	case "status":
		fmt.Printf("parents: %d\n", d.fabric.Registry().ParentCount())
	case "search":
		if len(fields) < 2 {
			fmt.Println("usage: search <query>")
			return true
		}
		query := strings.Join(fields[1:], " ")
		d.Search(query)
		fmt.Println("search issued")
	default:
		fmt.Printf("unknown command %q\n", fields[0])
	}
	return true
}
