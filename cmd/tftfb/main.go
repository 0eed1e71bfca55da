package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tftfb/internal/capture"
	"tftfb/internal/config"
	"tftfb/internal/convert"
	"tftfb/internal/hw"
	"tftfb/internal/ili9341"
	appLog "tftfb/internal/log"
	"tftfb/internal/schedule"
	"tftfb/internal/splash"
	"tftfb/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
	noHW       bool
	dump       string
}

func main() {
	flags := parseFlags()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, flags); err != nil {
		appLog.Error("tftfb failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tftfb/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Bring the panel up, draw one frame and exit")
	flag.BoolVar(&cfg.noHW, "no-hw", false, "Do not touch SPI/GPIO; frames are discarded")
	flag.StringVar(&cfg.dump, "dump", "", "Directory to write frame.bin and preview.png into on exit")

	flag.Parse()

	return cfg
}

func run(ctx context.Context, flags flagConfig) error {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.Log.Level))
	appLog.SetOutput(os.Stderr, conf.Log.Console)

	appLog.Info("tftfb starting", "version", version)
	appLog.Info("effective config",
		"spi_port", conf.SPI.Port,
		"spi_speed_hz", conf.SPI.SpeedHz,
		"dc", conf.Pins.DC,
		"interval", conf.Refresh.Interval,
		"retry_attempts", conf.Refresh.RetryAttempts,
		"policy", conf.Buffer.Policy,
		"listen", conf.Listen,
		"capture_url", conf.Capture.URL,
		"once", flags.once,
		"no_hw", flags.noHW,
	)

	opts, err := deviceOpts(conf)
	if err != nil {
		return err
	}
	tr, sig, err := openTransport(conf, flags.noHW)
	if err != nil {
		return err
	}
	dev := ili9341.New(tr, sig, opts)

	if conf.Splash.Enabled {
		splash.Paint(dev.Buffer(), conf.Splash.Title)
	}

	sched, err := newScheduler(conf, dev)
	if err != nil {
		return errors.Join(err, dev.Close())
	}

	if flags.once {
		return errors.Join(runOnce(ctx, dev, sched), dump(flags.dump, dev.Buffer()), dev.Close())
	}

	if err := dev.Start(ctx); err != nil {
		if ctx.Err() != nil {
			// Interrupted during bring-up.
			return dev.Close()
		}
		return errors.Join(err, dev.Close())
	}
	if sched != nil {
		sched.Start()
	}

	srvCtx, stopSrv := context.WithCancel(ctx)
	defer stopSrv()
	// srvDone stays nil without a server so the select below never picks it.
	var srvDone chan error
	if conf.Listen != "" {
		srvDone = make(chan error, 1)
		var c web.Capturer
		if sched != nil {
			c = sched
		}
		srv := web.NewServer(conf, dev, c)
		go func() { srvDone <- srv.Serve(srvCtx) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-dev.Done():
		// Also closes on ctx cancellation, in which case Err is nil.
		runErr = dev.Err()
	case err := <-srvDone:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
		srvDone = nil
	}

	// Stop producers before the device releases the bus.
	stopSrv()
	if sched != nil {
		sched.Stop()
	}
	if srvDone != nil {
		if err := <-srvDone; err != nil && runErr == nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	runErr = errors.Join(runErr, dump(flags.dump, dev.Buffer()), dev.Close())

	appLog.Info("tftfb exiting")
	return runErr
}

// deviceOpts maps the config onto driver options.
func deviceOpts(conf *config.Config) (*ili9341.Opts, error) {
	policy, err := ili9341.ParsePolicy(conf.Buffer.Policy)
	if err != nil {
		return nil, err
	}
	var retry ili9341.RetryPolicy = ili9341.NoRetry{}
	if conf.Refresh.RetryAttempts > 0 {
		retry = ili9341.BoundedRetry{Attempts: conf.Refresh.RetryAttempts, Delay: conf.Refresh.RetryDelay}
	}
	return &ili9341.Opts{
		Policy:       policy,
		Interval:     conf.Refresh.Interval,
		Retry:        retry,
		SleepOnClose: conf.Refresh.SleepOnExit,
	}, nil
}

func openTransport(conf *config.Config, noHW bool) (ili9341.Transport, ili9341.Signal, error) {
	if noHW {
		n := hw.NewNull()
		return n, n, nil
	}
	bus, err := hw.Open(hw.Opts{
		Port:    conf.SPI.Port,
		SpeedHz: conf.SPI.SpeedHz,
		Mode:    conf.SPI.Mode,
		DC:      conf.Pins.DC,
	})
	if err != nil {
		return nil, nil, err
	}
	return bus, bus, nil
}

// newScheduler returns nil when no capture URL is configured.
func newScheduler(conf *config.Config, dev *ili9341.Device) (*schedule.Scheduler, error) {
	if conf.Capture.URL == "" {
		return nil, nil
	}
	return schedule.New(conf.Capture.Schedule, &schedule.Job{
		Capture: capture.PNG,
		Options: capture.Options{
			URL:          conf.Capture.URL,
			Timeout:      conf.Capture.Timeout,
			WaitSelector: conf.Capture.WaitSelector,
		},
		Buffer: dev.Buffer(),
	})
}

func runOnce(ctx context.Context, dev *ili9341.Device, sched *schedule.Scheduler) error {
	if err := dev.Init(ctx); err != nil {
		return err
	}
	if sched != nil {
		// A failed capture still shows the splash.
		_ = sched.RunNow(ctx)
	}
	if err := dev.Flush(); err != nil {
		return err
	}
	appLog.Info("frame sent", "bytes", dev.Buffer().Len())
	return nil
}

// dump writes the raw frame and a PNG preview into dir. Empty dir is a no-op.
func dump(dir string, buf *ili9341.PixelBuffer) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	frame := buf.Snapshot()
	if err := os.WriteFile(filepath.Join(dir, "frame.bin"), frame, 0o644); err != nil {
		return err
	}
	png, err := convert.EncodePNG(frame)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "preview.png"), png, 0o644); err != nil {
		return err
	}
	appLog.Info("dumped frame", "dir", dir)
	return nil
}
