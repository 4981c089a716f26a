package main

import (
	"fmt"
	"net/http"
	"os"

	"voicebar/config"
	"voicebar/logger"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer, err := logger.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closer.Close()

	app := NewApp(cfg, log)
	err = wails.Run(&options.App{
		Title:      config.AppName,
		Width:      420,
		Height:     560,
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		AssetServer: &assetserver.Options{
			Handler: http.HandlerFunc(serveStatusPage),
		},
		Bind: []interface{}{app},
	})
	if err != nil {
		log.Error("app exited", "error", err)
		os.Exit(1)
	}
}
