// Package ui renders the cc2538-bd command line output.
//
// Every command prints a header box naming the operation and its
// parameters, then a success or failure box once the operation returns.
// Failure boxes carry the troubleshooting text produced by
// flasher.TroubleshootingHint. There is no live progress display; set
// --verbose to follow a run through the log on stderr.
//
//	p := ui.NewPrinter(os.Stdout)
//	p.Header("Flash image", "cc2538-bd flash",
//	    ui.Field{Key: "Port", Value: port},
//	    ui.Field{Key: "Image", Value: path},
//	)
//	result, err := controller.Flash(ctx, img.Data)
//	if err != nil {
//	    p.Failure("Flash failed", err, flasher.TroubleshootingHint(err))
//	}
//
// Zap logging goes to stderr and is silent unless --verbose or
// CC2538_BD_LOG_LEVEL is set, so it never interleaves with this output.
package ui
