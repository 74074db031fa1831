package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

type palette struct {
	heading *color.Color
	listed  *color.Color
	missing *color.Color
	warn    *color.Color
	muted   *color.Color
}

func newPalette() palette {
	return palette{
		heading: color.New(color.Bold),
		listed:  color.New(color.FgHiGreen),
		missing: color.New(color.FgHiBlack),
		warn:    color.New(color.FgYellow),
		muted:   color.New(color.FgHiBlue),
	}
}

func (p palette) line(w io.Writer, c *color.Color, format string, args ...any) {
	c.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}
