package main

import (
	"fmt"

	"github.com/dunamismax/pixelbatch/internal/config"
	"github.com/dunamismax/pixelbatch/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cli carries the viper instance every subcommand loads its config from.
type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}
	return c.rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pixelbatch",
		Short: "Resize, rotate and convert a directory of images in parallel",
		Long: `pixelbatch decodes every image under an input path, applies the configured
resize, rotation and flips, and writes the result into an output directory
without ever overwriting an existing file.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runBatch(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "optional YAML config file")
	addBatchFlags(flags)
	addTransformFlags(flags)
	addAmbientFlags(flags)
	c.bind(flags)

	root.AddCommand(newEnqueueCmd(c), newReportCmd(c))
	return root
}

func addBatchFlags(flags *pflag.FlagSet) {
	flags.StringP("input-dir", "i", "", "input file or directory")
	flags.StringP("output-dir", "o", "", "output directory, created if missing")
	flags.BoolP("recursive", "R", false, "descend into subdirectories")
	flags.Int("workers", 0, "parallel workers (0 = number of CPUs)")
	flags.Bool("fail-on-error", false, "exit non-zero when any file fails")
}

func addTransformFlags(flags *pflag.FlagSet) {
	defaults := domain.DefaultTransformOptions()

	flags.IntP("width", "w", 0, "target width in pixels")
	flags.IntP("height", "H", 0, "target height in pixels")
	flags.StringP("resize-type", "t", defaults.Resize.String(), "resize policy: exact, thumbnail, fill or none")
	flags.StringP("filter", "f", defaults.Filter.String(), "resampling filter: lanczos, triangle, catmullrom, gaussian or nearest")
	flags.StringP("format", "F", "", "output format: png, jpeg, tiff, webp or avif (default: keep source format)")
	flags.Float64P("quality", "Q", float64(defaults.Quality), "webp/avif quality, 1.0 to 100.0")
	flags.IntP("speed", "S", defaults.Speed, "avif encoder speed, 1 (slowest) to 10")
	flags.StringP("rotation", "r", "", "clockwise rotation: 90, 180 or 270")
	flags.BoolP("flip-horizontal", "s", false, "mirror left to right")
	flags.BoolP("flip-vertical", "v", false, "mirror top to bottom")
}

func addAmbientFlags(flags *pflag.FlagSet) {
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "console", "log format: console or json")
	flags.String("log-file", "", "also write JSON logs to this rotated file")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("trace-exporter", "none", "span exporter: none, stdout or otlp")
	flags.String("database-dsn", "", "Postgres DSN for the result ledger")
	flags.String("bucket", "", "mirror outputs into this S3 bucket")
	flags.String("webhook-url", "", "POST the run summary to this URL")
	flags.Bool("claim", false, "claim output names in Redis before writing")
}

var flagKeys = map[string]string{
	"input-dir":       "batch.input",
	"output-dir":      "batch.output",
	"recursive":       "batch.recursive",
	"workers":         "batch.workers",
	"fail-on-error":   "batch.fail_on_error",
	"width":           "transform.width",
	"height":          "transform.height",
	"resize-type":     "transform.resize",
	"filter":          "transform.filter",
	"format":          "transform.format",
	"quality":         "transform.quality",
	"speed":           "transform.speed",
	"rotation":        "transform.rotation",
	"flip-horizontal": "transform.flip_horizontal",
	"flip-vertical":   "transform.flip_vertical",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"metrics-addr":    "metrics.addr",
	"trace-exporter":  "telemetry.exporter",
	"database-dsn":    "database.dsn",
	"bucket":          "storage.bucket",
	"webhook-url":     "webhook.url",
	"claim":           "claim.enabled",
}

func (c *cli) bind(flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func (c *cli) load() (config.Config, error) {
	return config.Load(c.v, c.configFile)
}
