// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package version holds the agent build metadata.
package version

// AgentVersion is set at build time through -ldflags
var AgentVersion = "0.99.0"

// Commit is the git commit the agent was built from, set at build time
var Commit = ""
