// Package config declares the effective configuration of the server as a
// set of validated Go values built from viper-bound cobra flags/env vars,
// per spec §6 and §9 ("dynamic config objects -> explicit config record").
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is implemented by every configuration group registered with a
// cobra command. Init binds flags/env vars; Set reads the resolved values
// into the receiver, and is re-invoked whenever the config file changes.
type Config interface {
	Init(cmd *cobra.Command) error
	Set()
}

// Server holds bind address, TLS, and base-URL selection settings.
type Server struct {
	Bind  string
	Cert  string
	Key   string
	Proxy bool
	PProf bool

	PublicDomain string
	ForceHTTPS   bool

	ShutdownGraceSeconds int
}

func (Server) Init(cmd *cobra.Command) error {
	flags := []struct {
		name, def, usage string
	}{
		{"bind", "127.0.0.1:8080", "address/port to bind the HTTP server"},
		{"cert", "", "path to TLS certificate"},
		{"key", "", "path to TLS key"},
		{"public-domain", "", "public domain used to build absolute playlist URLs"},
	}
	for _, f := range flags {
		cmd.PersistentFlags().String(f.name, f.def, f.usage)
		if err := viper.BindPFlag(f.name, cmd.PersistentFlags().Lookup(f.name)); err != nil {
			return err
		}
	}

	cmd.PersistentFlags().Bool("proxy", false, "trust X-Forwarded-For (behind a reverse proxy)")
	cmd.PersistentFlags().Bool("pprof", false, "expose pprof endpoints at /debug/pprof")
	cmd.PersistentFlags().Bool("force-https", false, "force https scheme in absolute playlist URLs")
	cmd.PersistentFlags().Int("shutdown-grace", 30, "seconds to wait for in-flight requests during shutdown")

	for _, name := range []string{"proxy", "pprof", "force-https", "shutdown-grace"} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) Set() {
	s.Bind = viper.GetString("bind")
	s.Cert = viper.GetString("cert")
	s.Key = viper.GetString("key")
	s.Proxy = viper.GetBool("proxy")
	s.PProf = viper.GetBool("pprof")
	s.PublicDomain = viper.GetString("public-domain")
	s.ForceHTTPS = viper.GetBool("force-https")
	s.ShutdownGraceSeconds = viper.GetInt("shutdown-grace")
}

// Store holds the embedded metadata store location.
type Store struct {
	DBPath string
}

func (Store) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("db-path", "./stashcast.db", "path to the embedded sqlite metadata store")
	return viper.BindPFlag("db-path", cmd.PersistentFlags().Lookup("db-path"))
}

func (s *Store) Set() {
	s.DBPath = viper.GetString("db-path")
}

// Planner holds segment planning/transcode settings, spec §4.1 and §6.
type Planner struct {
	MaxSegmentBytes    int64
	MinSegmentDuration float64
	MaxSegmentDuration float64
	PlannerBudgetSecs  int

	ScratchDir    string
	FFmpegBinary  string
	FFprobeBinary string
	HardwareAccel string // auto | <encoder name> | none
}

func (Planner) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Int64("max-segment-bytes", 15*1024*1024, "per-segment byte cap")
	cmd.PersistentFlags().Float64("min-segment-duration", 2, "lower bound of the segment duration search")
	cmd.PersistentFlags().Float64("max-segment-duration", 30, "upper bound of the segment duration search")
	cmd.PersistentFlags().Int("planner-budget", 20, "seconds allotted to the duration search before accepting the current best")
	cmd.PersistentFlags().String("scratch-dir", "", "scratch directory for in-progress ingests (default: OS temp dir)")
	cmd.PersistentFlags().String("ffmpeg-binary", "ffmpeg", "path to the ffmpeg binary")
	cmd.PersistentFlags().String("ffprobe-binary", "ffprobe", "path to the ffprobe binary")
	cmd.PersistentFlags().String("hardware-accel", "none", "hardware encoder: auto | <encoder name> | none")

	for _, name := range []string{
		"max-segment-bytes", "min-segment-duration", "max-segment-duration",
		"planner-budget", "scratch-dir", "ffmpeg-binary", "ffprobe-binary", "hardware-accel",
	} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) Set() {
	p.MaxSegmentBytes = viper.GetInt64("max-segment-bytes")
	p.MinSegmentDuration = viper.GetFloat64("min-segment-duration")
	p.MaxSegmentDuration = viper.GetFloat64("max-segment-duration")
	p.PlannerBudgetSecs = viper.GetInt("planner-budget")
	p.FFmpegBinary = viper.GetString("ffmpeg-binary")
	p.FFprobeBinary = viper.GetString("ffprobe-binary")
	p.HardwareAccel = viper.GetString("hardware-accel")

	p.ScratchDir = viper.GetString("scratch-dir")
	if p.ScratchDir == "" {
		p.ScratchDir = os.TempDir()
	}
	_ = os.MkdirAll(p.ScratchDir, 0o755)
}

// Distributor holds upload concurrency/retry settings, spec §4.2 and §6.
type Distributor struct {
	UploadConcurrency int
	UploadRetries     int
}

func (Distributor) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().Int("upload-concurrency", 6, "bounded global upload concurrency (P)")
	cmd.PersistentFlags().Int("upload-retries", 3, "max upload attempts per segment (R)")
	for _, name := range []string{"upload-concurrency", "upload-retries"} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Distributor) Set() {
	d.UploadConcurrency = viper.GetInt("upload-concurrency")
	d.UploadRetries = viper.GetInt("upload-retries")
}

// Cache holds segment cache/prefetch settings, spec §4.3 and §6.
type Cache struct {
	Type                  string // memory | disk | redis
	SizeBytes             int64
	TTLSeconds            int
	Dir                   string
	RedisAddr             string
	PreloadSegments       int
	MaxConcurrentPreloads int
}

func (Cache) Init(cmd *cobra.Command) error {
	cmd.PersistentFlags().String("cache-type", "memory", "cache backend: memory | disk | redis")
	cmd.PersistentFlags().Int64("cache-size", 512*1024*1024, "cache high-water mark in bytes")
	cmd.PersistentFlags().Int("cache-ttl", 300, "cache entry TTL in seconds (0 disables TTL eviction)")
	cmd.PersistentFlags().String("cache-dir", "", "on-disk cache directory, required when cache-type=disk")
	cmd.PersistentFlags().String("redis-addr", "127.0.0.1:6379", "redis address, used when cache-type=redis")
	cmd.PersistentFlags().Int("preload-segments", 6, "number of sequential segments to prefetch on each miss (N)")
	cmd.PersistentFlags().Int("max-concurrent-preloads", 4, "bounded global prefetch concurrency (M)")

	for _, name := range []string{
		"cache-type", "cache-size", "cache-ttl", "cache-dir",
		"redis-addr", "preload-segments", "max-concurrent-preloads",
	} {
		if err := viper.BindPFlag(name, cmd.PersistentFlags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) Set() {
	c.Type = viper.GetString("cache-type")
	c.SizeBytes = viper.GetInt64("cache-size")
	c.TTLSeconds = viper.GetInt("cache-ttl")
	c.Dir = viper.GetString("cache-dir")
	c.RedisAddr = viper.GetString("redis-addr")
	c.PreloadSegments = viper.GetInt("preload-segments")
	c.MaxConcurrentPreloads = viper.GetInt("max-concurrent-preloads")

	if c.Type == "disk" && c.Dir != "" {
		_ = os.MkdirAll(c.Dir, 0o755)
	}
}

// Account is one credentialed identity on the external platform, spec §3.
type Account struct {
	ID          string `mapstructure:"id"`
	Credential  string `mapstructure:"credential"`
	Destination string `mapstructure:"destination"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access-key"`
	SecretKey   string `mapstructure:"secret-key"`
	UseTLS      bool   `mapstructure:"use-tls"`
}

// Accounts holds the ordered, static account list, spec §3.
type Accounts struct {
	List []Account
}

func (Accounts) Init(cmd *cobra.Command) error {
	return nil
}

func (a *Accounts) Set() {
	var list []Account
	if err := viper.UnmarshalKey("accounts", &list); err != nil {
		panic(fmt.Errorf("invalid accounts configuration: %w", err))
	}
	a.List = list
}

func (a *Accounts) Validate() error {
	if len(a.List) == 0 {
		return fmt.Errorf("apperr: %s", "at least one account must be configured")
	}
	seen := map[string]bool{}
	for _, acc := range a.List {
		if strings.TrimSpace(acc.ID) == "" {
			return fmt.Errorf("account entry missing id")
		}
		if seen[acc.ID] {
			return fmt.Errorf("duplicate account id %q", acc.ID)
		}
		seen[acc.ID] = true
	}
	return nil
}
