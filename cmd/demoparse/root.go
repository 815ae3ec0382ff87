package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dbalders/demoparser/demo"
	"github.com/dbalders/demoparser/demosource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	envPrefix   = "demoparse"
	serviceName = "demoparse"
)

// config keys, also the flag names
const (
	keyConfig     = "config"
	keyLogLevel   = "log-level"
	keySource     = "source"
	keyS3Region   = "s3-region"
	keyS3Endpoint = "s3-endpoint"
	keyMaxSize    = "max-size"
	keyMetrics    = "metrics-addr"

	keyProps       = "props"
	keyPlayerProps = "player-props"
	keyAlias       = "alias"
	keyTicks       = "ticks"
	keyEvent       = "event"
	keyNoEntities  = "no-entities"
	keyProjectiles = "projectiles"
	keyHeaderOnly  = "header-only"
	keyCountProps  = "count-props"
	keyStrict      = "strict"
	keyFormat      = "format"
	keyOutput      = "output"

	keyPrefix      = "prefix"
	keyConcurrency = "concurrency"
	keyOutDir      = "out-dir"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "demoparse",
		Short: "Decode Counter-Strike 2 demo files",
		Long: `demoparse decodes Source 2 demo recordings into per property time
series, game events, projectile paths and player lists.

Every flag may also be set in a config file (demoparse.yaml in the working
directory, or --config) or in the environment as DEMOPARSE_<FLAG>, with
dashes written as underscores.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String(keyConfig, "", "config file (default ./demoparse.yaml if present)")
	pf.String(keyLogLevel, "INFO", "log level")
	pf.String(keySource, ".", "demo location: a directory, s3://bucket/prefix or azblob://container/prefix")
	pf.String(keyS3Region, "", "S3 region (default from the AWS configuration)")
	pf.String(keyS3Endpoint, "", "S3 compatible endpoint url")
	pf.Int64(keyMaxSize, 0, "refuse demos larger than this many bytes")
	pf.String(keyMetrics, "", "serve prometheus metrics on this address while running")

	root.AddCommand(parseCmd(), batchCmd())
	return root
}

// addParserFlags declares the flags that select what a parse collects.
func addParserFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSlice(keyProps, nil, "properties to collect from every entity")
	f.StringSlice(keyPlayerProps, nil, "properties to collect from players, tagged with steam ids")
	f.StringToString(keyAlias, nil, "column names for wanted properties, prop=alias")
	f.IntSlice(keyTicks, nil, "only collect at these ticks")
	f.String(keyEvent, "", `game event to collect, or "all"`)
	f.Bool(keyNoEntities, false, "skip entity decoding")
	f.Bool(keyProjectiles, false, "collect grenade projectile positions")
	f.Bool(keyHeaderOnly, false, "stop after the file header")
	f.Bool(keyCountProps, false, "count property updates")
	f.Bool(keyStrict, false, "fail on schema errors instead of warning")
}

// loadConfig layers flags over the environment over the config file.
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, err
	}

	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
		return v, nil
	}
	v.SetConfigName(serviceName)
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	return v, nil
}

// parserOptions turns the configuration into demo parser options.
func parserOptions(v *viper.Viper, metrics *demo.Metrics) []demo.ParserOption {
	opts := []demo.ParserOption{demo.WithMetrics(metrics)}
	if props := v.GetStringSlice(keyProps); len(props) > 0 {
		opts = append(opts, demo.WithWantedProps(props...))
	}
	if props := v.GetStringSlice(keyPlayerProps); len(props) > 0 {
		opts = append(opts, demo.WithWantedPlayerProps(props...))
	}
	for name, alias := range v.GetStringMapString(keyAlias) {
		opts = append(opts, demo.WithPropAlias(name, alias))
	}
	if ticks := v.GetIntSlice(keyTicks); len(ticks) > 0 {
		wanted := make([]int32, len(ticks))
		for i, t := range ticks {
			wanted[i] = int32(t)
		}
		opts = append(opts, demo.WithWantedTicks(wanted...))
	}
	if ev := v.GetString(keyEvent); ev != "" {
		opts = append(opts, demo.WithWantedEvent(ev))
	}
	if v.GetBool(keyNoEntities) {
		opts = append(opts, demo.WithoutEntities())
	}
	if v.GetBool(keyProjectiles) {
		opts = append(opts, demo.WithProjectiles())
	}
	if v.GetBool(keyHeaderOnly) {
		opts = append(opts, demo.WithHeaderOnly())
	}
	if v.GetBool(keyCountProps) {
		opts = append(opts, demo.WithCountProps())
	}
	if v.GetBool(keyStrict) {
		opts = append(opts, demo.WithStrictSchema())
	}
	return opts
}

// app is the state shared by the subcommands of one invocation.
type app struct {
	v       *viper.Viper
	log     logger.Logger
	source  demosource.Source
	parser  *demo.Parser
	metrics *demo.Metrics
	server  *http.Server
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	v, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger.New(v.GetString(keyLogLevel))
	log := logger.Sugar.WithServiceName(serviceName)

	var srcOpts []demosource.Option
	if n := v.GetInt64(keyMaxSize); n > 0 {
		srcOpts = append(srcOpts, demosource.WithMaxSize(n))
	}
	src, err := demosource.Open(ctx, log, v.GetString(keySource), demosource.Config{
		S3Region:   v.GetString(keyS3Region),
		S3Endpoint: v.GetString(keyS3Endpoint),
	}, srcOpts...)
	if err != nil {
		return nil, err
	}

	a := &app{v: v, log: log, source: src}
	if addr := v.GetString(keyMetrics); addr != "" {
		reg := prometheus.NewRegistry()
		a.metrics = demo.NewMetrics(serviceName)
		if err := a.metrics.Register(reg); err != nil {
			return nil, err
		}
		a.serveMetrics(addr, reg)
	}
	a.parser = demo.NewParser(log, parserOptions(v, a.metrics)...)
	return a, nil
}

func (a *app) serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Infof("metrics server: %v", err)
		}
	}()
	a.log.Infof("serving metrics on %s/metrics", addr)
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.server.Shutdown(ctx)
	}
	logger.OnExit()
}
