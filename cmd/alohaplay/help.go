package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"
)

var (
	flagFormat   string
	flagOutput   string
	flagEngine   string
	flagDirect   bool
	flagStart    time.Duration
	flagRate     float64
	flagPaused   bool
	flagMonitor  string
	flagLogLevel string
	flagNoColor  bool
	flagHelp     bool
	flagVersion  bool
)

func init() {
	flag.StringVarP(&flagFormat, "format", "f", "", "Container format")
	flag.StringVarP(&flagOutput, "output", "o", "", "Write decoded frames to file")
	flag.StringVarP(&flagEngine, "engine", "e", "software", "Decoding engine")
	flag.BoolVarP(&flagDirect, "direct", "d", false, "Decode directly into renderer frames")
	flag.DurationVarP(&flagStart, "start", "s", 0, "Start position")
	flag.Float64VarP(&flagRate, "rate", "r", 1, "Playback rate")
	flag.BoolVarP(&flagPaused, "paused", "p", false, "Stay paused on the first frame")
	flag.StringVarP(&flagMonitor, "monitor", "m", "", "Status server address")
	flag.StringVarP(&flagLogLevel, "loglevel", "l", "", "Log levels, as tag=level,...")
	flag.BoolVarP(&flagNoColor, "no-color", "", false, "Disable colored output")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Headless media player for connected devices

Usage: alohaplay [OPTION]... URL

URL is a local file, a file:// URL or an http(s):// URL. Supported
containers: YUV4MPEG2 (.y4m), H.264 byte stream (.h264), MP4, MPEG-TS, FLV.

Playback:
  -s, --start=DURATION   Start position, e.g. 1m30s (default: 0)
  -r, --rate=NUM         Playback rate (default: 1)
  -p, --paused           Stop after prerolling the first frame
  -f, --format=NAME      Container format, when the URL does not tell

Decoding:
  -e, --engine=NAME      Decoding engine, software or omx (default: software)
  -d, --direct           Decode straight into renderer frames if possible

Output:
  -o, --output=FILE      Write frames to FILE. A .y4m extension writes a
                         YUV4MPEG2 stream, anything else raw planar YUV
                         (default: frames are counted and discarded)
  -m, --monitor=ADDR     Serve status on ADDR, at /status and /events

Miscellaneous:
  -l, --loglevel=LEVELS  Log levels, e.g. info,demux=debug (default: $LOGLEVEL)
      --no-color         Disable colored output
  -h, --help             Prints this help message and exits
  -v, --version          Prints version information and exits

Please report bugs to: aloha@lanikailabs.com`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//         _         _
	//   __ _ | |  ___  | |__    __ _   _ __  | |  __ _  _   _
	//  / _` || | / _ \ | '_ \  / _` | | '_ \ | | / _` || | | |
	// | (_| || || (_) || | | || (_| | | |_) || || (_| || |_| |
	//  \__,_||_| \___/ |_| |_| \__,_| | .__/ |_| \__,_| \__, |
	//                                 |_|               |___/

	// Line 1
	r.Printf("        ")
	y.Printf(" _ ")
	b.Printf("       ")
	y.Printf(" _     ")
	r.Printf("        ")
	b.Printf("       ")
	y.Println(" _ ")

	// Line 2
	r.Printf("   __ _ ")
	y.Printf("| |")
	b.Printf("  ___  ")
	y.Printf("| |__  ")
	r.Printf("  __ _  ")
	b.Printf(" _ __  ")
	y.Printf("| |")
	r.Printf("  __ _ ")
	b.Println(" _   _ ")

	// Line 3
	r.Printf("  / _` |")
	y.Printf("| |")
	b.Printf(" / _ \\ ")
	y.Printf("| '_ \\ ")
	r.Printf(" / _` | ")
	b.Printf("| '_ \\ ")
	y.Printf("| |")
	r.Printf(" / _` |")
	b.Println("| | | |")

	// Line 4
	r.Printf(" | (_| |")
	y.Printf("| |")
	b.Printf("| (_) |")
	y.Printf("| | | |")
	r.Printf("| (_| | ")
	b.Printf("| |_) |")
	y.Printf("| |")
	r.Printf("| (_| |")
	b.Println("| |_| |")

	// Line 5
	r.Printf("  \\__,_|")
	y.Printf("|_|")
	b.Printf(" \\___/ ")
	y.Printf("|_| |_|")
	r.Printf(" \\__,_| ")
	b.Printf("| .__/ ")
	y.Printf("|_|")
	r.Printf(" \\__,_|")
	b.Println(" \\__, |")

	// Line 6
	r.Printf("                                ")
	b.Printf(" |_|   ")
	y.Printf("   ")
	r.Printf("       ")
	b.Println(" |___/ ")

	fmt.Println(helpString)
}
