package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohaplay"
	"github.com/lanikai/alohaplay/internal/logging"
)

// Populated via -ldflags="-X ...".
var GitRevisionId string
var GitTag string

var log = logging.DefaultLogger.WithTag("alohaplay")

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("alohaplay", GitTag, GitRevisionId)
	fmt.Println("Copyright 2019 Lanikai Labs LLC. All rights reserved.")
	fmt.Println("Visit https://lanikailabs.com for more information")
}

func main() {
	flag.Parse()

	if flagNoColor {
		logging.DisableColor()
	}
	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "alohaplay: expected one URL (see --help)")
		os.Exit(2)
	}
	if flagLogLevel != "" {
		if err := logging.SetLevels(flagLogLevel); err != nil {
			fmt.Fprintln(os.Stderr, "alohaplay:", err)
			os.Exit(2)
		}
	}

	os.Exit(run(flag.Arg(0)))
}

func run(url string) int {
	player, err := alohaplay.New(alohaplay.Config{
		URL:             url,
		Format:          flagFormat,
		Output:          flagOutput,
		Engine:          flagEngine,
		DirectRendering: flagDirect,
		StartTime:       flagStart,
		PlaybackRate:    flagRate,
		Paused:          flagPaused,
		MonitorAddress:  flagMonitor,
	})
	if err != nil {
		log.Error("%v", err)
		return 2
	}
	defer player.Stop()

	player.AddListener(func(s alohaplay.Status) {
		log.Debug("%v at %v/%v", s.State, s.Position, s.Duration)
	})

	// Interrupt stops playback; a paused player waits for it.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := player.Start(ctx); err != nil {
		log.Error("%v", err)
		return 1
	}
	if err := player.Wait(ctx); err != nil && ctx.Err() == nil {
		log.Error("Playback failed: %v", err)
		return 1
	}

	status := player.Status()
	log.Info("%v at %v of %v (%dx%d)", status.State, status.Position, status.Duration, status.Width, status.Height)
	if err := player.Stop(); err != nil {
		log.Error("%v", err)
		return 1
	}
	return 0
}
