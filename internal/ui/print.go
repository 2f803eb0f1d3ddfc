package ui

import (
	"fmt"
	"io"
)

// Printer writes headers and result boxes for commands that do not need
// a step list (info, ping, config).
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a Printer writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, width: GetTerminalWidth()}
}

// Header prints a command header box
func (p *Printer) Header(title, command string, params ...Field) {
	_, _ = fmt.Fprintln(p.out, NewHeader(title, command, params...).SetWidth(p.width).Render())
}

// Success prints a success result box
func (p *Printer) Success(title string, details ...Field) {
	_, _ = fmt.Fprintln(p.out)
	_, _ = fmt.Fprintln(p.out, NewSuccessResult(title, details...).SetWidth(p.width).Render())
}

// Failure prints a failure result box with troubleshooting text
func (p *Printer) Failure(title string, err error, hint string) {
	_, _ = fmt.Fprintln(p.out)
	_, _ = fmt.Fprintln(p.out, NewFailureResult(title, err, hint).SetWidth(p.width).Render())
}

// Warning prints a warning result box
func (p *Printer) Warning(title string, details ...Field) {
	_, _ = fmt.Fprintln(p.out)
	_, _ = fmt.Fprintln(p.out, NewWarningResult(title, details...).SetWidth(p.width).Render())
}
