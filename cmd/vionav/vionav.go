// Command vionav runs the visual-inertial localization and mapping node: it
// provisions a localization map, streams camera and IMU data through the
// estimator and saves the resulting map on request or on shutdown.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/vionav/internal/app"
	"github.com/banshee-data/vionav/internal/config"
	"github.com/banshee-data/vionav/internal/monitoring"
	"github.com/banshee-data/vionav/internal/saverpc"
	"github.com/banshee-data/vionav/internal/version"
)

var (
	paramsFile = flag.String("params", "", "Optional JSON overrides file, applied below command-line flags")

	localizationMap = flag.String("localization-map", "", "Folder holding the localization map (summary or full format); empty runs without one")
	ncameraFile     = flag.String("ncamera", "", "Camera rig calibration JSON")
	imuFile         = flag.String("imu", "", "IMU parameter JSON")
	imuSigmasFile   = flag.String("imu-sigmas", "", "Estimator-specific IMU sigma override JSON")

	saveMapFolder  = flag.String("save-map-folder", "", "Folder to save the built map into")
	overwriteMap   = flag.Bool("overwrite", false, "Overwrite the save folder instead of allocating a numbered sibling")
	optimizeOnSave = flag.Bool("optimize-on-save", false, "Derive a summary map and trajectory plot when saving")
	saveOnShutdown = flag.Bool("save-on-shutdown", true, "Save the map during shutdown when a save folder is set")
	persistFrames  = flag.Bool("persist-resources", false, "Store raw frame payloads alongside the map (requires -save-map-folder)")

	sourceType = flag.String("source", "", "Data source: live or replay")
	replayPath = flag.String("replay", "", "Packet capture to replay; implies -source=replay unless -source=live is given")

	listen     = flag.String("listen", "", "HTTP listen address for the debug surface")
	grpcListen = flag.String("grpc-listen", "", "gRPC listen address for the map-save service")
	cameraPort = flag.Int("camera-port", 0, "UDP port for live camera frames")
	imuPort    = flag.String("imu-port", "", "Serial port for the live IMU")
)

// flagOverrides turns explicitly-set flags into an override provider, so
// unset flags fall through to the params file and the defaults.
func flagOverrides() *config.Overrides {
	o := &config.Overrides{}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "localization-map":
			o.LocalizationMapFolder = localizationMap
		case "ncamera":
			o.CameraCalibration = ncameraFile
		case "imu":
			o.ImuParameters = imuFile
		case "imu-sigmas":
			o.EstimatorImuParameters = imuSigmasFile
		case "save-map-folder":
			o.SaveMapFolder = saveMapFolder
		case "overwrite":
			o.OverwriteExistingMap = overwriteMap
		case "optimize-on-save":
			o.OptimizeMapOnSave = optimizeOnSave
		case "save-on-shutdown":
			o.SaveMapOnShutdown = saveOnShutdown
		case "persist-resources":
			o.PersistFrameResources = persistFrames
		case "source":
			o.SourceType = sourceType
		case "replay":
			o.ReplayPath = replayPath
		case "listen":
			o.HTTPListenAddr = listen
		case "grpc-listen":
			o.GRPCListenAddr = grpcListen
		case "camera-port":
			o.CameraUDPPort = cameraPort
		case "imu-port":
			o.ImuSerialPort = imuPort
		}
	})
	return o
}

func main() {
	flag.Parse()
	os.Exit(run())
}

// run always returns 0: failures are logged and shut down in order rather
// than aborting mid-flight.
func run() int {
	monitoring.Logf("vionav %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	flags := flagOverrides()
	if err := flags.Validate(); err != nil {
		log.Printf("invalid flags: %v", err)
		return 0
	}
	providers := []*config.Overrides{flags}
	if *paramsFile != "" {
		fileOverrides, err := config.LoadOverrides(*paramsFile)
		if err != nil {
			log.Printf("invalid params file: %v", err)
			return 0
		}
		providers = append(providers, fileOverrides)
	}

	cfg := config.Resolve(config.Defaults(), providers...)

	a := app.New(cfg)
	if err := a.Init(); err != nil {
		log.Printf("initialization failed: %v", err)
		a.Close()
		return 0
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Debug HTTP surface.
	mux := http.NewServeMux()
	a.AttachAdminRoutes(mux)
	httpServer := &http.Server{Addr: cfg.HTTPListenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Warnf("http server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			monitoring.Warnf("http server shutdown error: %v", err)
		}
	}()

	// Map-save RPC.
	rpcServer, err := saverpc.Listen(cfg.GRPCListenAddr, a)
	if err != nil {
		log.Printf("failed to start save RPC: %v", err)
		return 0
	}
	defer rpcServer.Stop()

	if err := a.Run(ctx); err != nil {
		log.Printf("run failed: %v", err)
		return 0
	}

	// Poll for data exhaustion or a signal.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("signal received, shutting down")
			break poll
		case <-ticker.C:
			if a.ShouldExit() {
				monitoring.Logf("data sources exhausted, shutting down")
				break poll
			}
		}
	}

	// Drain first so the saved map holds every accepted frame.
	a.Shutdown()

	if cfg.SaveMapOnShutdown && cfg.SaveMapFolder != "" {
		if folder, err := a.SaveMap(); err != nil {
			monitoring.Warnf("failed to save map on shutdown: %v", err)
		} else {
			monitoring.Logf("map saved to %s", folder)
		}
	}
	return 0
}
