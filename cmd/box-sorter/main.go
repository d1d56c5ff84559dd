package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ilarionkuleshov/medicine-box-sorting/internal/camera"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/camera/webcam"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/classifier"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/config"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/control"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/detection"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/log"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/ocr"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/pipeline"
	"github.com/ilarionkuleshov/medicine-box-sorting/internal/transporter"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("box-sorter %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			fmt.Printf("  Tesseract:  %s\n", ocr.TesseractVersion())
			return
		case "--help", "-h", "help":
			printHelp()
			return
		case "--ports", "ports":
			listPorts()
			return
		}
	}

	if err := run(); err != nil {
		log.Error("station stopped", "error", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("box-sorter - medicine box inspection station")
	fmt.Println()
	fmt.Println("Usage: box-sorter [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --ports          List serial ports")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Configuration is read from the environment and ./.env:")
	fmt.Println("  CAMERA_SOURCES=0,2,4          device indexes or frame directories")
	fmt.Println("  CAMERA_FOCUS=20,20,30         fixed focus per camera")
	fmt.Println("  SERIAL_PORT=/dev/ttyUSB0      transporter serial port")
	fmt.Println("  OCR_PROVIDER=vision           vision or tesseract")
	fmt.Println("  KEYWORDS_PATH=extra-files/boxes.json")
	fmt.Println("  CROP_METHOD=ssim              ssim or diff")
	fmt.Println("  REDIS_URL, SNAPSHOT_DIR       optional result sinks")
	fmt.Println("  LOG_LEVEL=info, LOG_FORMAT=text")
	fmt.Println()
	fmt.Println("Commands on stdin: k (re-baseline), r (reopen port), s (status), q (quit)")
}

func listPorts() {
	ports, err := transporter.Ports()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list serial ports: %v\n", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := log.Init(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting box sorter", "version", Version, "commit", GitCommit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dict, err := classifier.LoadDictionary(cfg.KeywordsPath)
	if err != nil {
		return err
	}
	cls := classifier.New(dict, classifier.WithThreshold(cfg.MatchThreshold))
	logger.Info("keywords loaded",
		"categories", strings.Join(dict.Names(), ","),
		"threshold", cls.Threshold())

	engine, err := ocr.New(ctx, cfg.OCRProvider, ocr.Options{
		CredentialsFile: cfg.OCRCredentials,
		Languages:       strings.Split(cfg.OCRLanguage, "+"),
		Hints:           cfg.OCRHints,
		TessdataPrefix:  cfg.TessdataPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCR engine: %w", err)
	}

	detector, err := detection.New(cfg.CropMethod)
	if err != nil {
		return err
	}

	cameras := openCameras(cfg)

	arrival := transporter.New(transporter.Config{
		Port:    cfg.SerialPort,
		Marker:  cfg.SerialMarker,
		Settle:  cfg.SettleDelay,
		Backoff: cfg.SerialRetryBackoff,
		Logger:  log.With("component", "transporter"),
	}, transporter.SerialOpener(cfg.SerialBaud, cfg.SerialReadTimeout))
	if err := arrival.Start(); err != nil {
		return err
	}
	defer arrival.Stop()

	sinks := []pipeline.Sink{&pipeline.LogSink{Out: os.Stdout}}
	if cfg.RedisURL != "" {
		rs, err := pipeline.NewRedisSinkFromURL(ctx, cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return err
		}
		defer rs.Close()
		sinks = append(sinks, rs)
		logger.Info("publishing results", "channel", rs.Channel())
	}
	if cfg.SnapshotDir != "" {
		sinks = append(sinks, &pipeline.SnapshotSink{Dir: cfg.SnapshotDir})
	}

	p, err := pipeline.New(arrival, detector, engine, cls, cameras,
		pipeline.WithSinks(sinks...),
		pipeline.WithInterval(cfg.CycleInterval),
		pipeline.WithOCRTimeout(cfg.OCRTimeout),
		pipeline.WithStatusHook(func() {
			logger.Info("transporter status", "port", cfg.SerialPort, "state", arrival.State().String())
		}))
	if err != nil {
		closeAll(cameras)
		return err
	}
	defer p.Close()

	logger.Info("station ready", "cameras", len(cameras), "method", cfg.CropMethod, "ocr", cfg.OCRProvider)
	return p.Run(ctx, control.Listen(ctx, os.Stdin, log.With("component", "control")))
}

// openCameras opens every configured source. Sources that fail to open are
// logged and left out; the pipeline reports when none remain.
func openCameras(cfg *config.Config) []camera.Camera {
	var cams []camera.Camera
	for _, c := range cfg.Cameras() {
		var (
			cam camera.Camera
			err error
		)
		if c.Device {
			cam, err = openDevice(c, cfg)
		} else {
			cam, err = openReplay(c)
		}
		if err != nil {
			log.Error("failed to open camera", "source", c.Source, "error", err)
			continue
		}
		log.Info("camera opened", "camera", cam.Name(), "focus", c.Focus)
		cams = append(cams, cam)
	}
	return cams
}

func openDevice(c config.Camera, cfg *config.Config) (camera.Camera, error) {
	d, err := webcam.Open(webcam.Config{Index: c.Index, Focus: c.Focus, Warmup: cfg.CameraWarmup})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func openReplay(c config.Camera) (camera.Camera, error) {
	r, err := camera.NewReplay("", c.Source)
	if err != nil {
		return nil, err
	}
	log.Info("replaying recorded frames", "dir", c.Source, "frames", r.Len())
	return r, nil
}

func closeAll(cams []camera.Camera) {
	for _, c := range cams {
		c.Close()
	}
}
