package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/MrSnakeDoc/fleet/internal/app"
	"github.com/MrSnakeDoc/fleet/internal/config"
	"github.com/MrSnakeDoc/fleet/internal/version"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "YAML file with default settings (env vars override it)")
	showVersion := pflag.BoolP("version", "v", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	a, err := app.New(config.Load(*configFile))
	if err != nil {
		log.Fatalf("❌ fleetd failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ fleetd stopped with error: %v", err)
	}
}
