// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config holds the process-guard configuration singleton.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Agent is the global configuration object
var Agent = viper.New()

func init() {
	Agent.SetConfigName("process-guard")
	Agent.SetEnvPrefix("PG")
	Agent.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Agent.AutomaticEnv()
	setDefaults(Agent)
}

func setDefaults(config *viper.Viper) {
	config.SetDefault("log_level", "info")
	config.SetDefault("log_file", "")

	// Scheduling engine. The loop period and worker count were fixed
	// constants in the kernel agent's first iteration; they are a tuning
	// surface here, with the same defaults.
	config.SetDefault("dispatch_loop_sleep_ms", 10)
	config.SetDefault("num_workers", 4)
	config.SetDefault("shutdown_grace_period_secs", 5)

	// Anti-predictability jitter bounds applied to jittered timers,
	// expressed as a fraction of the base interval.
	config.SetDefault("timer_jitter_fraction", 0.5)

	// Kernel channel health: entering Draining requires recurring
	// transport failures across at least this many distinct checks.
	config.SetDefault("kernel_failure_escalation_threshold", 3)

	// Driver identity, read once at startup.
	config.SetDefault("driver.name", "procguard")
	config.SetDefault("driver.device_name", `\Device\ProcGuard`)
	config.SetDefault("driver.symbolic_link", `\??\ProcGuard`)
	config.SetDefault("driver.image_path", `C:\Windows\System32\drivers\procguard.sys`)
	config.SetDefault("driver.registry_path", `SYSTEM\CurrentControlSet\Services\procguard`)
	config.SetDefault("driver.device_path", `\\.\ProcGuard`)
	config.SetDefault("driver.event_pipe", `\\.\pipe\procguard-events`)

	// Per-check interval/timeout overrides, yaml file (optional).
	config.SetDefault("checks_config_path", "")

	// Outward telemetry queue.
	config.SetDefault("telemetry.max_batch_size", 64)
	config.SetDefault("telemetry.max_retention_secs", 5)

	// Local status API.
	config.SetDefault("api.enabled", true)
	config.SetDefault("api.port", 5101)

	// How often we log a line for a healthy check once it settled.
	config.SetDefault("logging_frequency", 20)
}

// Load reads the configuration file, if one is reachable. A missing file is
// not an error: defaults plus environment cover the full surface.
func Load(confPath string) error {
	if confPath != "" {
		Agent.SetConfigFile(confPath)
	} else {
		Agent.AddConfigPath(".")
		Agent.AddConfigPath(`C:\ProgramData\ProcessGuard`)
		Agent.AddConfigPath("/etc/process-guard")
	}

	err := Agent.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}
