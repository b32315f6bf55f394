package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/alohaplay/internal/logging"
)

var log = logging.DefaultLogger.WithTag("alohabench")

func main() {
	flag.Parse()

	if flagNoColor {
		logging.DisableColor()
		color.NoColor = true
	}
	if flagHelp {
		help()
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "alohabench: expected one URL (see --help)")
		os.Exit(2)
	}
	if flagLogLevel != "" {
		if err := logging.SetLevels(flagLogLevel); err != nil {
			fmt.Fprintln(os.Stderr, "alohabench:", err)
			os.Exit(2)
		}
	}
	if flagDepth < 1 {
		fmt.Fprintln(os.Stderr, "alohabench: --depth must be at least 1")
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	result, err := run(ctx, benchConfig{
		URL:    flag.Arg(0),
		Format: flagFormat,
		Engine: flagEngine,
		Direct: flagDirect,
		Depth:  flagDepth,
		Frames: flagFrames,
	})
	if err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}

	color.New(color.FgCyan).Printf("%d frames", result.Frames)
	fmt.Printf(" in %v, ", result.Elapsed.Round(time.Millisecond))
	color.New(color.FgYellow).Printf("%.1f fps\n", result.FPS())
}
