package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/trackpose/internal/api"
	"github.com/banshee-data/trackpose/internal/config"
	"github.com/banshee-data/trackpose/internal/db"
	"github.com/banshee-data/trackpose/internal/posemux"
	"github.com/banshee-data/trackpose/internal/source"
	"github.com/banshee-data/trackpose/internal/tracker"
	"github.com/banshee-data/trackpose/internal/version"
)

// options holds the command-line flags. Flags that are set override the
// config file.
type options struct {
	configPath  string
	listen      string
	dbPath      string
	dev         bool
	fixture     string
	devices     string
	invertX     bool
	invertZ     bool
	flipXZ      bool
	serialPort  string
	showVersion bool

	set map[string]bool
}

func parseFlags(args []string) (*options, error) {
	o := &options{set: make(map[string]bool)}
	fs := flag.NewFlagSet("trackpose", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to a JSON tracking config")
	fs.StringVar(&o.listen, "listen", config.DefaultListen, "Listen address")
	fs.StringVar(&o.dbPath, "db", "", "SQLite file for session recording (empty disables recording)")
	fs.BoolVar(&o.dev, "dev", false, "Use the synthetic pose source")
	fs.StringVar(&o.fixture, "fixture", "", "Serve poses from a JSON fixture file")
	fs.StringVar(&o.devices, "devices", "", "Comma-separated device indices to sample, e.g. 1,0,1")
	fs.BoolVar(&o.invertX, "invert-x", false, "Negate the first transform row")
	fs.BoolVar(&o.invertZ, "invert-z", false, "Negate the third transform row")
	fs.BoolVar(&o.flipXZ, "flip-xz", false, "Swap the first and third transform rows")
	fs.StringVar(&o.serialPort, "serial", "", "Serial device to stream CSV frames to")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if o.dev && o.fixture != "" {
		return nil, errors.New("-dev and -fixture are mutually exclusive")
	}
	return o, nil
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig(o *options) (*config.TrackingConfig, error) {
	cfg := config.DefaultTrackingConfig()
	if o.configPath != "" {
		loaded, err := config.LoadTrackingConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.set["listen"] {
		cfg.Listen = &o.listen
	}
	if o.set["db"] {
		cfg.DBPath = &o.dbPath
	}
	if o.dev {
		src := config.SourceSynthetic
		cfg.Source = &src
	}
	if o.fixture != "" {
		src := config.SourceFixture
		cfg.Source = &src
		cfg.FixturePath = &o.fixture
	}
	if o.set["devices"] {
		indices, err := parseIndices(o.devices)
		if err != nil {
			return nil, err
		}
		cfg.DeviceIndices = indices
	}
	if o.set["invert-x"] {
		cfg.InvertX = &o.invertX
	}
	if o.set["invert-z"] {
		cfg.InvertZ = &o.invertZ
	}
	if o.set["flip-xz"] {
		cfg.FlipXZ = &o.flipXZ
	}
	if o.set["serial"] {
		cfg.SerialPort = &o.serialPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseIndices(s string) ([]uint32, error) {
	var indices []uint32
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid device index %q: %w", part, err)
		}
		indices = append(indices, uint32(v))
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("no device indices in %q", s)
	}
	return indices, nil
}

// newProvider builds the configured pose source and checks that every
// requested index names one of its devices.
func newProvider(cfg *config.TrackingConfig) (source.Provider, error) {
	var p source.Provider
	switch cfg.GetSource() {
	case config.SourceFixture:
		fixture, err := source.LoadFixture(cfg.GetFixturePath())
		if err != nil {
			return nil, err
		}
		p = fixture
	default:
		p = source.NewSynthetic(source.SyntheticConfig{
			Devices: cfg.GetSyntheticDevices(),
			Radius:  cfg.GetSyntheticRadius(),
			Period:  cfg.GetSyntheticPeriod(),
			Height:  1.6,
		})
	}

	for _, idx := range cfg.GetDeviceIndices() {
		if int(idx) >= p.DeviceCount() {
			return nil, fmt.Errorf("device index %d out of range: source has %d device(s)", idx, p.DeviceCount())
		}
	}
	return p, nil
}

// Main
func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("%v", err)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("starting %s", version.String())

	provider, err := newProvider(cfg)
	if err != nil {
		log.Fatalf("failed to create pose source: %v", err)
	}

	frames := posemux.New()
	defer frames.Close()

	loop, err := tracker.New(tracker.Config{
		Provider: provider,
		Mux:      frames,
		Indices:  cfg.GetDeviceIndices(),
		Axes:     cfg.AxisConfig(),
		Interval: cfg.GetSampleInterval(),
	})
	if err != nil {
		log.Fatalf("failed to create sampling loop: %v", err)
	}

	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		database, err = db.OpenDB(path)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	}

	var sink *posemux.SerialSink
	if port := cfg.GetSerialPort(); port != "" {
		sink, err = posemux.OpenSerialSink(port, cfg.GetSerial())
		if err != nil {
			log.Fatalf("failed to open serial sink: %v", err)
		}
		defer sink.Close()
	}

	// Create a wait group for the sampler, recorder, serial sink and HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("sampling loop failed: %v", err)
		}
		log.Print("sampling routine terminated")
	}()

	if database != nil {
		recorder, err := db.NewRecorder(database, cfg.AxisConfig(), cfg.GetDeviceIndices(), cfg.GetRecordEvery())
		if err != nil {
			log.Fatalf("failed to start recording session: %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx, frames); err != nil {
				log.Printf("recorder failed: %v", err)
			}
			log.Print("recorder routine terminated")
		}()
	}

	if sink != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sink.Run(ctx, frames); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serial sink failed: %v", err)
			}
			log.Printf("serial sink routine terminated (%d frame(s) written)", sink.Written())
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(loop, frames, database).ServeMux()
		frames.AttachAdminRoutes(mux)
		if database != nil {
			database.AttachAdminRoutes(mux)
		}

		// BaseContext ends open event streams when ctx is cancelled.
		server := &http.Server{
			Addr:        cfg.GetListen(),
			Handler:     api.LoggingMiddleware(mux),
			BaseContext: func(net.Listener) context.Context { return ctx },
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("listening on %s", cfg.GetListen())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// Force close the server if graceful shutdown fails
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
