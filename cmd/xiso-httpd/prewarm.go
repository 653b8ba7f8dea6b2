package main

import (
	"fmt"
	"log/slog"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/facade"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/logutil"
)

type prewarmCmd struct {
	Paths []string `arg:"" help:"Inputs (images, directories or zip archives) to validate." type:"path"`

	logFlags
}

// Run exercises the full sniff/TOC/SearchTree pipeline for each input
// without starting a server, so a library can be validated before an
// emulator is attached. Exits non-zero if any input fails to parse.
func (c *prewarmCmd) Run() error {
	c.setupLogger()

	p := mpb.New(mpb.WithWidth(64))
	bar := p.New(int64(len(c.Paths)),
		mpb.BarStyle(),
		mpb.PrependDecorators(
			decor.Name("prewarm "),
			decor.CountersNoUnit("%d / %d"),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)

	var failed int
	for _, path := range c.Paths {
		cache := facade.NewCache(facade.Options{Logger: slog.Default()})

		pl, err := cache.Open(path)
		if err != nil {
			slog.Error("Input failed to parse", "path", path, logutil.ErrorAttr(err))
			failed++
		} else {
			slog.Info("Input validated",
				"path", path,
				"title_id", pl.Title.TitleID,
				"title_name", pl.Title.TitleName,
				"size", int64(pl.Mat.TotalSize()),
				"regions", len(pl.Model.Regions()),
			)
		}

		_ = cache.Close()
		bar.Increment()
	}
	p.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d inputs failed to parse", failed, len(c.Paths))
	}
	return nil
}
