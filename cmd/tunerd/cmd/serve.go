package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanshiro-tv/tunerd/internal/config"
	"github.com/sanshiro-tv/tunerd/internal/filter"
	"github.com/sanshiro-tv/tunerd/internal/httpapi"
	"github.com/sanshiro-tv/tunerd/internal/models"
	"github.com/sanshiro-tv/tunerd/internal/timeshift"
	"github.com/sanshiro-tv/tunerd/internal/tuner"
	"github.com/sanshiro-tv/tunerd/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tunerd server",
	Long: `Start the tunerd HTTP server.

The server provides:
- A Mirakurun-compatible tuner inventory and stream API
- Raw MPEG-TS channel streaming through the configured tuner pool
- Timeshift record query and playback for configured recorders`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Host to bind to (overrides config)")
	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// config.Load owns a hermetic viper instance unaware of this command's
	// flags, so --host/--port are applied directly rather than bound
	// through viper.
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Server.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Server.Port = port
	}

	logger := slog.Default()

	tuners, err := buildTuners(cfg.Tuners, logger)
	if err != nil {
		return fmt.Errorf("building tuners: %w", err)
	}
	tunerManager := tuner.NewManager(tuners, logger)

	timeshiftManager := timeshift.NewManager(tunerManager, logger)
	for i, rc := range cfg.Timeshift.Recorders {
		recorderCfg, err := buildRecorderConfig(rc)
		if err != nil {
			return fmt.Errorf("timeshift.recorders[%d]: %w", i, err)
		}
		if err := timeshiftManager.AddRecorder(recorderCfg); err != nil {
			return fmt.Errorf("adding timeshift recorder %q: %w", rc.Name, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeshiftManager.Start(ctx)

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     httpapi.DefaultServerConfig().IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger, version.Version)

	httpapi.RegisterRoutes(srv, tunerManager, timeshiftManager, buildFilterConfig(cfg), version.Version, logger)

	logger.Info("tunerd starting", "address", cfg.Server.Address(), "tuners", len(tuners), "recorders", len(cfg.Timeshift.Recorders))

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	return nil
}

// buildTuners converts configured tuner entries into live Tuner instances,
// resolving each entry's channel type names against models.ChannelType.
func buildTuners(entries []config.TunerConfig, logger *slog.Logger) ([]*tuner.Tuner, error) {
	tuners := make([]*tuner.Tuner, 0, len(entries))
	for i, t := range entries {
		types, err := parseChannelTypes(t.Types)
		if err != nil {
			return nil, fmt.Errorf("tuners[%d]: %w", i, err)
		}
		tuners = append(tuners, tuner.New(tuner.Config{
			Index:           i,
			Name:            t.Name,
			ChannelTypes:    types,
			CommandTemplate: t.Command,
			TimeLimit:       t.TimeLimitDuration(),
			Decoded:         t.Decoded,
		}, logger))
	}
	return tuners, nil
}

func parseChannelTypes(names []string) ([]models.ChannelType, error) {
	types := make([]models.ChannelType, 0, len(names))
	for _, name := range names {
		ct := models.ChannelType(name)
		if !ct.Valid() {
			return nil, fmt.Errorf("unknown channel type %q", name)
		}
		types = append(types, ct)
	}
	return types, nil
}

// buildRecorderConfig translates a configured recorder entry into the
// timeshift package's RecorderConfig, rendering its pre_filters/post_filters
// command templates through filter.Build.
func buildRecorderConfig(rc config.TimeshiftRecorderConfig) (timeshift.RecorderConfig, error) {
	ct := models.ChannelType(rc.ChannelType)
	if !ct.Valid() {
		return timeshift.RecorderConfig{}, fmt.Errorf("unknown channel_type %q", rc.ChannelType)
	}

	result, err := filter.Build(filter.Context{
		ChannelType: rc.ChannelType,
		Channel:     rc.Channel,
		ServiceID:   rc.ServiceID,
	}, resolveConfiguredFilters(rc.PreFilters, rc.PostFilters))
	if err != nil {
		return timeshift.RecorderConfig{}, err
	}

	return timeshift.RecorderConfig{
		Name:        rc.Name,
		ServiceID:   rc.ServiceID,
		ChannelType: ct,
		Channel:     rc.Channel,
		ExtraArgs:   rc.ExtraArgs,
		Filters:     result.Commands,
		RingSize:    rc.RingSizeBytes(),
		RecordPath:  rc.RecordPath,
		TSFile:      rc.TSFile,
	}, nil
}

// resolveConfiguredFilters turns a recorder's raw pre_filters/post_filters
// command-template strings into unnamed filter.Spec entries: unlike the
// HTTP layer's pre-filters[]/post-filters[] query parameters, a recorder
// has no per-request caller to name filters for it, so its config entries
// are command templates directly.
func resolveConfiguredFilters(pre, post []string) []filter.Spec {
	specs := make([]filter.Spec, 0, len(pre)+len(post))
	for _, cmd := range pre {
		specs = append(specs, filter.Spec{Command: cmd})
	}
	for _, cmd := range post {
		specs = append(specs, filter.Spec{Command: cmd})
	}
	return specs
}

// buildFilterConfig resolves the server-wide named filter tables (the
// decode filter plus the pre-filters[]/post-filters[] lookup tables) from
// configuration into the form httpapi.RegisterRoutes wires into the
// channel streaming route.
func buildFilterConfig(cfg *config.Config) httpapi.FilterConfig {
	d := cfg.Filters.DecodeFilter
	decode := filter.Spec{Name: d.Name, Command: d.Command, ContentType: d.ContentType}

	toSpecs := func(entries []config.FilterConfig) []filter.Spec {
		specs := make([]filter.Spec, 0, len(entries))
		for _, f := range entries {
			specs = append(specs, filter.Spec{Name: f.Name, Command: f.Command, ContentType: f.ContentType})
		}
		return specs
	}

	return httpapi.FilterConfig{
		Decode: decode,
		Pre:    toSpecs(cfg.PreFilters),
		Post:   toSpecs(cfg.PostFilters),
	}
}
