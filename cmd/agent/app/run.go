// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package app

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/DataDog/process-guard/pkg/api"
	"github.com/DataDog/process-guard/pkg/config"
	"github.com/DataDog/process-guard/pkg/dispatcher"
	"github.com/DataDog/process-guard/pkg/guard"
	"github.com/DataDog/process-guard/pkg/kernel"
	"github.com/DataDog/process-guard/pkg/telemetry"
	"github.com/DataDog/process-guard/pkg/util/log"
	"github.com/DataDog/process-guard/pkg/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the process-guard agent",
	Long:  `Runs the agent in the foreground`,
	RunE:  run,
}

func run(cmd *cobra.Command, args []string) error {
	defer log.Flush()

	if err := config.Load(confPath); err != nil {
		return errors.Wrap(err, "unable to load configuration")
	}
	if err := log.SetupFromConfig(config.Agent.GetString("log_level"), config.Agent.GetString("log_file")); err != nil {
		return errors.Wrap(err, "unable to set up logging")
	}

	log.Infof("starting process-guard %s (commit %s)", version.AgentVersion, version.Commit)

	driverCfg := guard.NewDriverConfig()
	err := driverCfg.Initialize(guard.DriverIdentity{
		DriverName:   config.Agent.GetString("driver.name"),
		DeviceName:   config.Agent.GetString("driver.device_name"),
		SymbolicLink: config.Agent.GetString("driver.symbolic_link"),
		DriverPath:   config.Agent.GetString("driver.image_path"),
		RegistryPath: config.Agent.GetString("driver.registry_path"),
	})
	if err != nil {
		return errors.Wrap(err, "initializing driver identity")
	}

	catalog := kernel.Catalog()
	if path := config.Agent.GetString("checks_config_path"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading check overrides from %s", path)
		}
		if err := kernel.ApplyOverrides(catalog, data); err != nil {
			return errors.Wrap(err, "applying check overrides")
		}
		log.Infof("applied check overrides from %s", path)
	}

	transport, events, err := openKernelChannel()
	if err != nil {
		return errors.Wrap(err, "opening kernel channel")
	}

	queue := telemetry.NewQueue(
		config.Agent.GetInt("telemetry.max_batch_size"),
		time.Duration(config.Agent.GetInt("telemetry.max_retention_secs"))*time.Second,
		flushTelemetry,
	)

	processCfg := guard.NewProcessConfig()
	d, err := dispatcher.New(dispatcher.Config{Catalog: catalog}, kernel.New(transport), events, processCfg, queue)
	if err != nil {
		return errors.Wrap(err, "building dispatcher")
	}
	if err := d.Run(); err != nil {
		return errors.Wrap(err, "starting dispatcher")
	}

	var srv *api.Server
	if config.Agent.GetBool("api.enabled") {
		srv = api.NewServer(config.Agent.GetInt("api.port"), d, processCfg)
		srv.Start()
	}

	// Block here until we receive a stop signal or the dispatcher drains
	// itself after a channel failure.
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	doneCh := make(chan struct{})
	go func() {
		d.Wait()
		close(doneCh)
	}()

	select {
	case sig := <-signalCh:
		log.Infof("received signal %d (%v), shutting down", sig, sig)
		d.Stop()
	case <-doneCh:
		log.Warn("dispatcher drained on its own, shutting down") //nolint:errcheck
	}

	if srv != nil {
		srv.Stop()
	}
	queue.Stop()
	log.Info("see ya!")
	return nil
}

// flushTelemetry is the outward sink for batched telemetry records. Each
// record goes out as one structured log line.
func flushTelemetry(records []*telemetry.Record) {
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			log.Errorf("cannot marshal telemetry record: %v", err) //nolint:errcheck
			continue
		}
		log.Infof("telemetry: %s", line)
	}
}
