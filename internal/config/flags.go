package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/cradlekeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   sqlite database location
//	-e string   control-plane base URL
//	-p string   push-channel websocket URL
//	-t string   device token
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-e", "-p", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite database location")
	fs.StringVar(&cfg.ControlEndpointURL, "e", cfg.ControlEndpointURL, "control-plane base URL")
	fs.StringVar(&cfg.PushEndpointURL, "p", cfg.PushEndpointURL, "push-channel websocket URL")
	fs.StringVar(&cfg.DeviceToken, "t", cfg.DeviceToken, "device token")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
