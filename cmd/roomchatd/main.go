package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/roomchat/internal/daemon"
	"github.com/matheus3301/roomchat/internal/session"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	serverFlag := flag.String("server", "", "chat server URL (overrides profile server_url)")
	userFlag := flag.String("user", "", "username (overrides profile username)")
	flag.Parse()

	profileName := session.Resolve(*profileFlag)
	if err := session.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			ProfileName: profileName,
			ServerURL:   *serverFlag,
			Username:    *userFlag,
		}),
	)

	app.Run()
}
