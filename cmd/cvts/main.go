package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/CVTS/cvts/internal/config"
	"github.com/CVTS/cvts/internal/db"
	"github.com/CVTS/cvts/internal/match"
	"github.com/CVTS/cvts/internal/metrics"
	"github.com/CVTS/cvts/internal/pipeline"
	"github.com/CVTS/cvts/internal/trace"
	"github.com/CVTS/cvts/internal/version"
)

var (
	configPath  = flag.String("config", "cvts.json", "Pipeline configuration file")
	workers     = flag.Int("workers", 0, "Override the configured worker pool size (0 keeps the config value)")
	metricsAddr = flag.String("metrics", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	matchOnly   = flag.Bool("match-only", false, "Run only the per-vehicle matching stage")
	skipRaster  = flag.Bool("skip-raster", false, "Skip the stop-point raster")
	showVersion = flag.Bool("version", false, "Print the build version and exit")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [geography ...]\n\n", os.Args[0])
	fmt.Fprintln(flag.CommandLine.Output(), "Runs the trace analytics pipeline: per-vehicle map matching, stop and")
	fmt.Fprintln(flag.CommandLine.Output(), "origin/destination extraction, then counts per raster cell and per region")
	fmt.Fprintln(flag.CommandLine.Output(), "of each named geography. With no geographies, every configured one runs.")
	fmt.Fprintln(flag.CommandLine.Output())
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	geographies := flag.Args()
	if len(geographies) == 0 {
		for name := range cfg.Geographies {
			geographies = append(geographies, name)
		}
	}
	for _, name := range geographies {
		if _, err := cfg.GeometryColumn(name); err != nil {
			log.Fatalf("%v", err)
		}
	}

	source, err := trace.NewDirSource(cfg.RawPath, cfg.TripGapDuration())
	if err != nil {
		log.Fatalf("indexing raw traces under %s: %v", cfg.RawPath, err)
	}

	oracle := &match.ValhallaOracle{ConfigPath: cfg.ValhallaConfig}
	collector := metrics.NewCollector()
	openSink := func() (pipeline.Sink, error) { return db.New(cfg.DatabasePath) }
	p := pipeline.New(cfg, source, oracle, openSink, collector)

	if *metricsAddr != "" {
		go func() {
			log.Printf("metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, collector.Handler()); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var targets []pipeline.Task
	switch {
	case *matchOnly:
		targets = append(targets, p.MatchTask())
	default:
		if !*skipRaster {
			targets = append(targets, p.RasterTask())
		}
		for _, name := range geographies {
			targets = append(targets,
				p.RegionCountsTask(name),
				p.SourceDestinationCountsTask(name),
			)
		}
		if len(targets) == 0 {
			targets = append(targets, p.StopPointsTask(), p.SourceDestPointsTask())
		}
	}

	runner := pipeline.NewRunner()
	log.Printf("run %s: targets %s", runner.RunID(), targetNames(targets))
	if err := runner.Run(ctx, targets...); err != nil {
		log.Fatalf("run %s: %v", runner.RunID(), err)
	}
	log.Printf("run %s: complete", runner.RunID())
}

func targetNames(targets []pipeline.Task) string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name()
	}
	return strings.Join(names, ", ")
}
