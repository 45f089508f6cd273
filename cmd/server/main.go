package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/handlers"
	"github.com/Brownie44l1/digit-api/internal/metrics"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "predict" {
		if len(os.Args) < 3 {
			log.Fatal("usage: server predict <image>")
		}
		if err := predictOnce(cfg, os.Args[2]); err != nil {
			log.Fatalf("Prediction failed: %v", err)
		}
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func initRuntime(cfg *config.Config) (*model.Server, func(), error) {
	if cfg.ONNXLibPath != "" {
		ort.SetSharedLibraryPath(cfg.ONNXLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	log.WithField("model", cfg.ModelPath).Info("Loading model")
	modelServer, err := model.NewServer(cfg.ModelPath, cfg.MetadataPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, nil, err
	}

	cleanup := func() {
		modelServer.Close()
		ort.DestroyEnvironment()
	}
	return modelServer, cleanup, nil
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	modelServer, cleanup, err := initRuntime(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	log.WithFields(log.Fields{
		"image_size": modelServer.InputSize(),
		"classes":    modelServer.Metadata.Classes,
	}).Info("Model loaded")

	gin.SetMode(cfg.GinMode)
	recorder := metrics.NewRecorder(metrics.NewHostSampler())
	handler := handlers.NewHandler(modelServer, recorder, cfg.MaxUploadBytes, cfg.MaxImagePixels)
	router, err := handlers.SetupRouter(handler, recorder, cfg.TrustedProxies)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		log.Println("Endpoints:")
		log.Println("  GET  /health   - Health check")
		log.Println("  POST /predict/ - Predict digit from image upload (field 'file')")
		log.Println("  GET  /metrics  - Prometheus metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// predictOnce runs the pipeline on a local file without starting the server.
func predictOnce(cfg *config.Config, imgPath string) error {
	modelServer, cleanup, err := initRuntime(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	return predictFile(os.Stdout, modelServer, imgPath, cfg.MaxImagePixels)
}

func predictFile(w io.Writer, predictor handlers.Predictor, imgPath string, maxImagePixels int64) error {
	file, err := os.Open(imgPath)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	start := time.Now()
	input, err := preprocess.Load(file, predictor.InputSize(), maxImagePixels)
	if err != nil {
		return err
	}
	result, err := predictor.Predict(input)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "digit: %d (confidence %.4f, %s)\n", result.Digit, result.Confidence, time.Since(start))
	return err
}
