package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/coordinator"
	"github.com/nginx-go/httpd/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var debug bool

	c := &cobra.Command{
		Use:           "httpd <config_file>",
		Short:         "single-process, event-driven HTTP/1.1 origin server",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetDebug(debug)
			return run(args[0])
		},
	}
	c.Flags().BoolVar(&debug, "debug", false, "enable debug-level logging")
	return c
}

func run(configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrapf(err, "reading config file %q", configPath)
	}
	servers, err := config.ParseFile(string(raw))
	if err != nil {
		return errors.Wrap(err, "parsing config file")
	}
	if len(servers) == 0 {
		return errors.New("config file defines no server blocks")
	}

	co, err := coordinator.New(servers)
	if err != nil {
		return errors.Wrap(err, "starting server")
	}
	logging.Log.Info("httpd: starting")
	return co.Run()
}
