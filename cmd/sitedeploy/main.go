package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/nais/sitedeploy/pkg/api"
	"github.com/nais/sitedeploy/pkg/deployclient"
	"github.com/nais/sitedeploy/pkg/telemetry"
	"github.com/nais/sitedeploy/pkg/version"
)

func main() {
	err := run()
	if err == nil {
		return
	}
	code := deployclient.ErrorExitCode(err)
	if code == deployclient.ExitInvocationFailure {
		flag.Usage()
	}
	log.Errorf("fatal: %s", err)
	os.Exit(int(code))
}

func run() error {
	// Configuration and context
	cfg := deployclient.NewConfig()
	deployclient.InitConfig(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Logging
	deployclient.SetupLogging(*cfg)

	// Welcome
	log.Infof("sitedeploy %s", version.Version())
	log.Debugf("This version was built %s", version.BuildTime())

	if len(cfg.OpenTelemetryCollectorURL) > 0 {
		tracerProvider, err := telemetry.New(ctx, "sitedeploy", cfg.OpenTelemetryCollectorURL)
		if err != nil {
			return deployclient.Errorf(deployclient.ExitInvocationFailure, "set up tracing: %s", err)
		}
		defer func() {
			err := tracerProvider.Shutdown(context.WithoutCancel(ctx))
			if err != nil {
				log.Warnf("Unable to flush traces: %s", err)
			}
		}()
	}

	opts, err := deployclient.Prepare(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		return deployclient.DryRun(ctx, *opts, os.Stdout, cfg.JSON)
	}

	client := api.New(cfg.APIURL, cfg.AuthToken, "sitedeploy/"+version.Version())

	result, err := deployclient.Deploy(ctx, cfg, client, *opts)
	if err != nil {
		return err
	}

	if cfg.JSON {
		err = deployclient.WriteJSON(os.Stdout, result, cfg.Prod)
		if err != nil {
			return deployclient.ErrorWrap(deployclient.ExitInternalError, err)
		}
	}

	return nil
}
