// Package config loads delegate configuration.
//
// Configuration comes from three layers, lowest precedence first:
//
//  1. Built-in defaults (DefaultConfig)
//  2. A TOML file
//  3. DELEGATE_* environment variables
//
// Example file:
//
//	[orchestrator]
//	max_concurrent = 3
//	default_timeout = "5m"
//
//	[log]
//	level = "info"
//	format = "console"
//
//	[executor]
//	kind = "lua"
//
//	[executor.lua]
//	script = "agents/review.lua"
//	watch = true
//
//	[server]
//	addr = "127.0.0.1:7420"
package config
