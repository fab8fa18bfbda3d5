package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/waveband/waveband/pkg/config"
	"github.com/waveband/waveband/pkg/logger"
	"github.com/waveband/waveband/pkg/upstream"
)

func main() {
	cli := &config.CLI{}
	arg.MustParse(cli)
	cli.File = os.ExpandEnv(cli.File)

	c, err := config.LoadFile(cli.File)
	if err != nil {
		panic(err)
	}

	proxy := NewProxy(c)

	if err := proxy.config.Prepare(); err != nil {
		log.Fatal(err)
	}

	proxy.setupLogger()
	proxy.setupKey()
	proxy.setupClient()

	go func() {
		t := time.Tick(5 * time.Second)
		for range t {
			if err := proxy.log.Sync(); err != nil {
				if err.Error() != "sync /dev/stderr: invalid argument" {
					log.Printf("failed to sync zap: %s", err)
				}
			}
		}
	}()

	// nolint
	defer proxy.log.Sync()

	const timeout = 1 * time.Minute

	srv := &http.Server{
		Handler:      proxy.router(),
		Addr:         proxy.config.Listen,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(
		sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)

	go func() {
		proxy.log.Info("Server starting", zap.String("listen", proxy.config.Listen))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			// Only log an error if it's not due to shutdown or close
			proxy.log.Fatal("error bringing up listener", zap.Error(err))
		}
	}()

	<-sc
	signal.Stop(sc)

	// Shutdown timeout should be max request timeout (with 1s buffer).
	ctxShutDown, cancel := context.WithTimeout(context.Background(), timeout+time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		proxy.log.Fatal("server shutdown failed", zap.Error(err))
	}

	proxy.log.Info("server shutdown gracefully")
}

type Proxy struct {
	config *config.Config

	// derived from the above
	client upstream.Client
	key    []byte

	log *zap.Logger
}

func NewProxy(config *config.Config) *Proxy {
	devLog, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	return &Proxy{
		config: config,
		log:    devLog,
	}
}

var (
	buildVersion = "dev"
	buildCommit  = "dirty"
)

func (proxy *Proxy) Version() string {
	return buildVersion + " (" + buildCommit + ")"
}

func (proxy *Proxy) setupLogger() {
	if log, err := logger.SetupLogger(proxy.config.LogMode, proxy.config.LogLevel); err != nil {
		panic(err)
	} else {
		proxy.log = log
	}
}

func (proxy *Proxy) setupKey() {
	proxy.key = proxy.config.KeyBytes()
}

func (proxy *Proxy) setupClient() {
	up := proxy.config.Upstream

	client, err := upstream.NewHTTPClient(up.BaseUrl, up.LoginUrl, upstream.Credentials{
		Username: up.Username,
		Password: up.Password,
		Region:   up.Region,
	}, proxy.log)
	if err != nil {
		proxy.log.Fatal("failed creating upstream client",
			zap.Error(err),
			zap.String("base_url", up.BaseUrl),
		)
	}

	proxy.client = client

	// A failed first login is not fatal: segment requests recover on their own
	// once the upstream accepts logins again.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := proxy.client.Authenticate(ctx); err != nil {
		proxy.log.Warn("initial authentication failed", zap.Error(errors.WithMessage(err, "logging in")))
	}
}
