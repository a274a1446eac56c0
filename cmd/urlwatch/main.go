package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"urlwatch/internal/app"
)

// CLI is the root command. Global flags are shared by every subcommand.
type CLI struct {
	Config  string `short:"c" help:"Optional JSON/YAML configuration file" type:"path"`
	EnvFile string `name:"env-file" help:"Optional dotenv file, applied below the process environment" type:"path"`
	Debug   bool   `short:"d" help:"Enable debug logging (same as DEBUG=1)"`

	Run         RunCmd         `cmd:"" default:"1" help:"Check every watched URL once and alert on change"`
	Show        ShowCmd        `cmd:"" help:"Print the stored digest of every watched URL"`
	CheckConfig CheckConfigCmd `cmd:"" name:"check-config" help:"Validate and print the resolved configuration"`
}

func (c *CLI) options() app.Options {
	return app.Options{ConfigPath: c.Config, EnvFile: c.EnvFile, Debug: c.Debug}
}

type RunCmd struct{}

func (r *RunCmd) Run(ctx context.Context, cli *CLI) error {
	out := app.Invoke(ctx, cli.options())
	if out.StatusCode != http.StatusOK {
		return fmt.Errorf("run failed (%d): %s", out.StatusCode, out.Body)
	}
	return nil
}

type ShowCmd struct{}

func (s *ShowCmd) Run(ctx context.Context, cli *CLI) error {
	return app.Show(ctx, cli.options(), os.Stdout)
}

type CheckConfigCmd struct{}

func (c *CheckConfigCmd) Run(cli *CLI) error {
	return app.CheckConfig(cli.options(), os.Stdout)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("urlwatch"),
		kong.Description("Stateless URL change detection: fetch, digest, persist, alert once."),
		kong.UsageOnError(),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err := kctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		cancel()
		os.Exit(1)
	}
}
