package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/version"
	"gopkg.in/yaml.v3"

	"github.com/grafana/ruleflow/cmd/ruleflow/app"
	"github.com/grafana/ruleflow/cmd/ruleflow/build"
	"github.com/grafana/ruleflow/pkg/util/log"
)

const appName = "ruleflow"

func init() {
	version.Version = build.Version
	version.Branch = build.Branch
	version.Revision = build.Revision
	prometheus.MustRegister(version.NewCollector(appName))
}

func main() {
	configFile := flag.String("config.file", "", "YAML config file; flags override values it sets")
	printVersion := flag.Bool("version", false, "Print this builds version information")

	cfg := app.NewDefaultConfig()
	fs := flag.CommandLine
	cfg.RegisterFlagsAndApplyDefaults("", fs)
	flag.Parse()

	if *printVersion {
		fmt.Println(version.Print(appName))
		os.Exit(0)
	}

	if *configFile != "" {
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })

		if err := loadConfigFile(*configFile, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed loading %s: %v\n", *configFile, err)
			os.Exit(1)
		}

		// Flags explicitly passed on the command line still win over the file.
		for name, val := range explicit {
			_ = fs.Set(name, val)
		}
	}

	log.InitLogger(cfg.LogLevel)

	for _, w := range cfg.CheckConfig() {
		level.Warn(log.Logger).Log("msg", "invalid config value", "err", w.Message, "explain", w.Explain)
	}

	a, err := app.New(cfg)
	if err != nil {
		level.Error(log.Logger).Log("msg", "failed to initialize app", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		level.Error(log.Logger).Log("msg", "ruleflow exited with error", "err", err)
		os.Exit(1)
	}
}

func loadConfigFile(path string, cfg *app.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}
