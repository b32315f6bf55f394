package logging

import "github.com/fatih/color"

// Level colors. The color package disables itself when the destination is not
// a terminal, or when NO_COLOR is set.
var (
	colorHeader = color.New(color.FgWhite)
	colorError  = color.New(color.FgRed, color.Bold)
	colorWarn   = color.New(color.FgRed)
	colorInfo   = color.New(color.Reset)
	colorDebug  = color.New(color.FgGreen)
	colorTrace  = color.New(color.FgYellow)
)

// DisableColor turns off colored output for all loggers.
func DisableColor() {
	color.NoColor = true
}
