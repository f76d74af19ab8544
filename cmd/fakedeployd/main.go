package main

import (
	"context"
	"errors"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nais/sitedeploy/pkg/conftools"
	"github.com/nais/sitedeploy/pkg/fakeapi"
	"github.com/nais/sitedeploy/pkg/hashing"
	"github.com/nais/sitedeploy/pkg/logging"
	"github.com/nais/sitedeploy/pkg/version"
)

type Config struct {
	AuthToken       string        `json:"auth-token"`
	BaseURL         string        `json:"base-url"`
	DiffDelay       time.Duration `json:"diff-delay"`
	HashAlgorithm   string        `json:"hash-algorithm"`
	ListenAddress   string        `json:"listen-address"`
	LogFormat       string        `json:"log-format"`
	LogLevel        string        `json:"log-level"`
	MetricsPath     string        `json:"metrics-path"`
	ProcessingDelay time.Duration `json:"processing-delay"`
}

const (
	AuthToken       = "auth-token"
	BaseURL         = "base-url"
	DiffDelay       = "diff-delay"
	HashAlgorithm   = "hash-algorithm"
	ListenAddress   = "listen-address"
	LogFormat       = "log-format"
	LogLevel        = "log-level"
	MetricsPath     = "metrics-path"
	ProcessingDelay = "processing-delay"

	shutdownTimeout = 10 * time.Second
)

var maskedConfig = []string{
	AuthToken,
}

func flags() *flag.FlagSet {
	fs := flag.NewFlagSet("fakedeployd", flag.ExitOnError)
	fs.String(AuthToken, "", "Bearer token required on every request. Empty disables authentication.")
	fs.String(BaseURL, "http://localhost:8080", "Base URL where fakedeployd can be reached.")
	fs.Duration(DiffDelay, time.Second, "How long asynchronous deploys stay in the preparing state.")
	fs.String(HashAlgorithm, hashing.DefaultAlgorithm, "Verify uploaded content with this digest algorithm. Empty disables verification.")
	fs.String(ListenAddress, "127.0.0.1:8080", "IP:PORT")
	fs.String(LogFormat, "text", "Log format, either 'json' or 'text'.")
	fs.String(LogLevel, "info", "Logging verbosity level.")
	fs.String(MetricsPath, "/metrics", "HTTP endpoint for exposed metrics.")
	fs.Duration(ProcessingDelay, time.Second, "How long uploaded deploys take to go live.")
	return fs
}

func run() error {
	v := viper.New()
	conftools.Initialize(v, "fakedeployd")

	cfg := &Config{}
	err := conftools.Load(v, flags(), os.Args[1:], cfg)
	if err != nil {
		return err
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	// Welcome
	log.Infof("fakedeployd %s", version.Version())
	log.Infof("This version was built %s", version.BuildTime())

	for _, line := range conftools.Format(v, maskedConfig) {
		log.Info(line)
	}

	server, err := fakeapi.New(fakeapi.Config{
		AuthToken:       cfg.AuthToken,
		BaseURL:         cfg.BaseURL,
		HashAlgorithm:   cfg.HashAlgorithm,
		DiffDelay:       cfg.DiffDelay,
		ProcessingDelay: cfg.ProcessingDelay,
		Registerer:      prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}

	server.Handle(cfg.MetricsPath, promhttp.Handler())

	errorLog, err := logging.New("error", cfg.LogFormat)
	if err != nil {
		return err
	}
	writer := errorLog.Writer()
	defer writer.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          stdlog.New(writer, "", 0),
	}

	go func() {
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err)
			os.Exit(1)
		}
	}()

	log.Infof("Ready to accept connections on %s", cfg.ListenAddress)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals

	log.Infof("Received signal %s (%d), exiting...", sig, sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

func main() {
	err := run()
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
