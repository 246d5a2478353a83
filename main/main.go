package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	telemetry "github.com/sufst/intermediate-server"
	"github.com/sufst/intermediate-server/emulate"
	"github.com/sufst/intermediate-server/hub"
	"github.com/sufst/intermediate-server/link"
	"github.com/sufst/intermediate-server/schema"
	"github.com/sufst/intermediate-server/wsfeed"
)

var configPath = flag.String("config", "config.toml", "runtime configuration file")
var emulation = flag.Bool("emulate", false, "force emulation mode regardless of config")

func main() {
	log.SetLevel(log.InfoLevel)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal("unable to load configuration: ", err)
	}

	sch, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		log.Fatal("unable to load sensor catalog: ", err)
	}
	log.WithField("version", sch.Version).
		WithField("sensors", len(sch.All())).
		Info("sensor catalog loaded")

	h := hub.New(hub.Config{
		QueueSize: cfg.Hub.QueueSize,
		SlowLimit: cfg.Hub.SlowLimit,
	})
	pipe := telemetry.NewPipeline(sch, h)

	dial := liveDialer(cfg)
	if cfg.Emulation.Enable || *emulation {
		log.WithField("seed", cfg.Emulation.Seed).Info("running in emulation mode")
		dial = emulationDialer(cfg, pipe)
	}

	sup := link.New(link.Config{
		BackoffBase: time.Duration(cfg.Link.BackoffBaseMS) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Link.BackoffMaxMS) * time.Millisecond,
		ReadTimeout: time.Duration(cfg.Link.ReadTimeoutMS) * time.Millisecond,
	}, dial, pipe.HandleFrame)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := sup.Run(ctx); err != nil {
			log.WithField("err", err).Info("link supervisor done")
		}
	}()

	srv := &http.Server{
		Addr:    cfg.Feed.Listen,
		Handler: wsfeed.New(h),
	}
	go func() {
		log.WithField("listen", cfg.Feed.Listen).Info("feed serving")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("feed server failed: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithField("err", err).Warn("feed shutdown incomplete")
	}

	stats := pipe.Stats()
	log.WithField("framesIn", stats.FramesIn).
		WithField("batches", stats.Batches).
		WithField("integrityDrops", stats.IntegrityDrops).
		Info("stopped")
}

func liveDialer(cfg *Config) link.Dialer {
	return func(ctx context.Context) (link.ByteSource, error) {
		d := net.Dialer{}
		conn, err := d.DialContext(ctx, "tcp", cfg.Link.Address)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func emulationDialer(cfg *Config, pipe *telemetry.Pipeline) link.Dialer {
	return func(context.Context) (link.ByteSource, error) {
		em := emulate.New(pipe.CurrentSchema(), cfg.Emulation.Seed)
		interval := time.Duration(cfg.Emulation.IntervalMS) * time.Millisecond
		return emulate.NewSource(em, interval), nil
	}
}
