package main

import (
	"fmt"

	flag "github.com/spf13/pflag"
)

var (
	flagFormat   string
	flagEngine   string
	flagDirect   bool
	flagDepth    int
	flagFrames   int
	flagLogLevel string
	flagNoColor  bool
	flagHelp     bool
)

func init() {
	flag.StringVarP(&flagFormat, "format", "f", "", "Container format")
	flag.StringVarP(&flagEngine, "engine", "e", "software", "Decoding engine")
	flag.BoolVarP(&flagDirect, "direct", "d", false, "Decode into pooled frames")
	flag.IntVarP(&flagDepth, "depth", "n", 3, "Frame requests kept outstanding")
	flag.IntVarP(&flagFrames, "frames", "c", 0, "Stop after this many frames")
	flag.StringVarP(&flagLogLevel, "loglevel", "l", "", "Log levels, as tag=level,...")
	flag.BoolVarP(&flagNoColor, "no-color", "", false, "Disable colored output")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
}

const helpString = `Decode throughput benchmark

Usage: alohabench [OPTION]... URL

Decodes the video stream of URL as fast as the engine allows, without
pacing or rendering, and reports frames per second.

  -f, --format=NAME      Container format, when the URL does not tell
  -e, --engine=NAME      Decoding engine, software or omx (default: software)
  -d, --direct           Decode straight into pooled frames if possible
  -n, --depth=NUM        Frame requests kept outstanding (default: 3)
  -c, --frames=NUM       Stop after NUM frames (default: whole stream)
  -l, --loglevel=LEVELS  Log levels, e.g. info,decode=debug (default: $LOGLEVEL)
      --no-color         Disable colored output
  -h, --help             Prints this help message and exits`

func help() {
	fmt.Println(helpString)
}
