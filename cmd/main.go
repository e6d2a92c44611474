package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"setupingest/cmd/apiserver"
	"setupingest/cmd/auditreport"
	"setupingest/cmd/discordbot"
	"setupingest/cmd/eventlisten"
	"setupingest/cmd/ingestor"
	"setupingest/cmd/keys"
	"setupingest/src/audit"
	"setupingest/src/calendar"
	"setupingest/src/database"
	"setupingest/src/parser"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "setupingest"
	app.Usage = "Ingest A+ scalp trade setups from Discord"
	app.Version = Version

	app.Commands = []cli.Command{
		ingestCMD,
		discordCMD,
		serveCMD,
		auditCMD,
		listenCMD,
		parseCMD,
		hashKeyCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	ingestCMD = cli.Command{
		Name:        "ingest",
		Usage:       "run the ingest worker",
		Action:      ingestAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Poll pending messages and parse them into trade setups`,
	}
	discordCMD = cli.Command{
		Name:        "discord",
		Usage:       "run the Discord listener",
		Action:      discordAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Store messages of DISCORD_CHANNEL_IDS, backfilling history first`,
	}
	serveCMD = cli.Command{
		Name:      "serve",
		Usage:     "run the HTTP API",
		Action:    serveAction,
		ArgsUsage: "",
		Flags: []cli.Flag{
			cli.BoolFlag{Name: "no-worker", Usage: "do not run the ingest worker in this process"},
			cli.BoolFlag{Name: "no-cron", Usage: "do not run the scheduled audit summary"},
		},
		Description: `Serve the operator API, the ingest worker and the audit schedule`,
	}
	auditCMD = cli.Command{
		Name:        "audit",
		Usage:       "print the audit report",
		Action:      auditAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Print the audit report for START_DATE..END_DATE (default AUDIT_WINDOW before now)`,
	}
	listenCMD = cli.Command{
		Name:        "listen",
		Usage:       "print setup events",
		Action:      listenAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Print events published by the pgnotify sink`,
	}
	parseCMD = cli.Command{
		Name:      "parse",
		Usage:     "parse a message without storing it",
		Action:    parseAction,
		ArgsUsage: "[file]",
		Flags: []cli.Flag{
			cli.StringFlag{Name: "at", Usage: "received time of the message (RFC3339), default now"},
		},
		Description: `Parse a message read from file or stdin and print the result as JSON`,
	}
	hashKeyCMD = cli.Command{
		Name:        "hashkey",
		Usage:       "hash an operator key",
		Action:      hashKeyAction,
		ArgsUsage:   "[key]",
		Flags:       []cli.Flag{},
		Description: `Print the OPERATOR_KEY_HASH for a key (or OPERATOR_KEY)`,
	}
)

func ingestAction(_ *cli.Context) error {
	logrus.WithField("cmd", "ingest").Info("Starting ingest CMD")

	ing := &ingestor.Ingestor{}
	if err := ing.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func discordAction(_ *cli.Context) error {
	logrus.WithField("cmd", "discord").Info("Starting discord CMD")

	bot := &discordbot.DiscordBot{}
	if err := bot.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

func serveAction(c *cli.Context) error {
	logrus.WithField("cmd", "serve").Info("Starting serve CMD")

	srv := &apiserver.APIServer{Worker: !c.Bool("no-worker"), Cron: !c.Bool("no-cron")}
	if err := srv.Start(); err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}
	return nil
}

// auditAction prints the audit report of the configured window
func auditAction(_ *cli.Context) error {
	logrus.Info("Starting audit CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Error("Failed to connect to database")
		return err
	}

	report := &auditreport.AuditReport{
		Log:    logrus.WithField("cmd", "audit"),
		DB:     database.MainDB,
		Out:    os.Stdout,
		Window: audit.GetConfig().Window,
	}
	if err := report.Start(context.Background()); err != nil {
		logrus.WithError(err).Error("Audit failed")
		return err
	}
	return nil
}

func listenAction(_ *cli.Context) error {
	logrus.WithField("cmd", "listen").Info("Starting listen CMD")

	l := &eventlisten.EventListen{}
	return l.Start()
}

func parseAction(c *cli.Context) error {
	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	content, err := io.ReadAll(in)
	if err != nil {
		return err
	}

	at := time.Now()
	if v := c.String("at"); v != "" {
		at, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	loc := calendar.LoadMarketLocation(os.Getenv("MARKET_TIMEZONE"))

	p, err := parser.NewFromConfig(parser.GetConfig())
	if err != nil {
		return err
	}
	res := p.Parse(parser.RawMessage{MessageID: "cli", Content: string(content), Timestamp: at.In(loc)})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func hashKeyAction(c *cli.Context) error {
	return keys.PrintOperatorKeyHash(os.Stdout, c.Args().First())
}
