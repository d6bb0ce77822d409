package config

import "path/filepath"

const (
	defaultPluginsDir  = "./plugins"
	defaultManifest    = "manifest.json"
	defaultOutputDir   = "./dist"
	defaultDevHost     = "127.0.0.1"
	defaultDevPort     = 7270
	defaultNATSSubject = "bunnybuild.events"
	defaultMetricsPath = "/metrics"
)

func applyDefaults(c *Config) {
	if c.Plugins.Dir == "" {
		c.Plugins.Dir = defaultPluginsDir
	}
	if c.Plugins.Manifest == "" {
		c.Plugins.Manifest = defaultManifest
	}
	if c.Build.OutputDir == "" {
		c.Build.OutputDir = defaultOutputDir
	}
	if c.Dev.Host == "" {
		c.Dev.Host = defaultDevHost
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = defaultDevPort
	}
	if c.Dev.SentinelPath == "" {
		// The sentinel lives next to the build output so clients and external
		// tooling can find it without extra configuration.
		c.Dev.SentinelPath = filepath.Join(c.Build.OutputDir, "lastBuild")
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = defaultNATSSubject
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
}
