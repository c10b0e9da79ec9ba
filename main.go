package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"souqlive/app/client/memstore"
	"souqlive/app/config"
	"souqlive/app/server"
	"souqlive/app/service/engine"
	"souqlive/app/service/fusion"
	"souqlive/app/service/history"
	"souqlive/app/service/lifecycle"
	"souqlive/app/service/queue"
	"souqlive/app/service/reply"
	"souqlive/app/service/snapshot"
	"souqlive/app/service/summarize"
	"souqlive/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, memstore.NewClient)
	do.Provide(di, history.New)
	do.Provide(di, summarize.New)
	do.Provide(di, fusion.New)
	do.Provide(di, snapshot.New)
	do.Provide(di, lifecycle.New)
	do.Provide(di, queue.New)
	do.Provide(di, reply.New)
	do.Provide(di, engine.New)
	do.Provide(di, server.New)

	slog.Info("Service started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*lifecycle.Service](di).RunRotation(appCtx)
	go do.MustInvoke[*engine.Service](di).Run(appCtx)
	go do.MustInvoke[*server.Service](di).Run(appCtx)

	<-appCtx.Done()
}
