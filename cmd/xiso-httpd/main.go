package main

import (
	"fmt"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/alecthomas/kong"

	"github.com/wilkovatch/http-xiso-wrapper/internal/kongutil"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/kongini"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
	builtBy = "unknown"
)

type app struct {
	Serve   serveCmd   `cmd:"" default:"withargs" help:"Serve an image, directory or zip archive as a synthesized XISO over HTTP."`
	Prewarm prewarmCmd `cmd:"" help:"Build and discard the TOC for one or more inputs to validate a library without starting a server."`

	Config  kong.ConfigFlag  `help:"Load flag defaults from an ini file."`
	Version kong.VersionFlag `help:"Show application version info."`
}

func main() {
	var app app
	ctx := kong.Parse(&app,
		kong.Name("xiso-httpd"),
		kong.Description("On-demand XISO materializer: serves Xbox game images to an emulator over HTTP without pre-conversion."),
		kong.Vars{
			"version": fmt.Sprintf("%s (commit '%s' at '%s' build by '%s')", version, commit, date, builtBy),
		},
		kong.Configuration(kongini.Loader, "xiso-httpd.ini"),
		kongutil.BinSizeMapper,
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
