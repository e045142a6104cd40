package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"videothingy/assembly-engine/internal/adapters/grpcalign"
	"videothingy/assembly-engine/internal/adapters/images"
	openaiadapter "videothingy/assembly-engine/internal/adapters/openai"
	"videothingy/assembly-engine/internal/api"
	"videothingy/assembly-engine/internal/assembler"
	"videothingy/assembly-engine/internal/config"
	"videothingy/assembly-engine/internal/db"
	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/ffmpeg"
	"videothingy/assembly-engine/internal/jobs"
	"videothingy/assembly-engine/internal/ports"
	"videothingy/assembly-engine/internal/storage"
	"videothingy/assembly-engine/internal/worker"
)

const jobQueueSize = 100

func main() {
	env := config.LoadEnv()
	log := config.InitLogger(env.LogLevel, env.LogFormat)
	log.Info("starting assembly engine processor")

	if err := run(env, log); err != nil {
		log.WithError(err).WithField("error_kind", errs.Kind(err)).Fatal("processor exited")
	}
	log.Info("processor shut down gracefully")
}

func run(env config.Env, log *logrus.Logger) error {
	cfg, err := config.Load(env.ConfigPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return &errs.ResourceError{Resource: "work dir " + cfg.WorkDir, Err: err}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	media := ffmpeg.New(log)
	if err := media.Validate(ctx); err != nil {
		return err
	}

	if env.OpenAIKey == "" {
		return errors.New("OPENAI_API_KEY must be set")
	}
	client := openaiadapter.NewClient(env.OpenAIKey, env.OpenAIBaseURL)
	synth := openaiadapter.NewSynthesizer(client, env.SpeechModel, cfg.Audio.ClipFormat, log)

	var aligner ports.Aligner = openaiadapter.NewAligner(client, cfg.Audio.ClipFormat)
	if env.AlignerAddr != "" {
		grpcAligner, err := grpcalign.Dial(env.AlignerAddr, cfg.Audio.ClipFormat)
		if err != nil {
			return &errs.ResourceError{Resource: "aligner " + env.AlignerAddr, Err: err}
		}
		defer grpcAligner.Close()
		aligner = grpcAligner
		log.WithField("addr", env.AlignerAddr).Info("using gRPC aligner")
	}

	store := jobs.NewStore()
	recorders := ports.Recorders{store}
	var external ports.StatusRecorder
	var uploader ports.Uploader
	if env.SupabaseURL != "" && env.SupabaseKey != "" {
		statusDB, err := db.NewStatusRecorder(env.SupabaseURL, env.SupabaseKey, env.StatusTable, log)
		if err != nil {
			return err
		}
		external = statusDB
		recorders = append(recorders, statusDB)
		if env.StorageBucket != "" {
			up, err := storage.New(env.SupabaseURL, env.SupabaseKey, env.StorageBucket, log)
			if err != nil {
				return err
			}
			uploader = up
		}
	} else {
		log.Warn("SUPABASE_URL or SUPABASE_SERVICE_KEY not set, status sink and uploads disabled")
	}

	fallbackImages := images.Chain{images.NewDir(env.ImageDir)}
	asm, err := assembler.New(cfg, assembler.Deps{
		Synthesizer: synth,
		Aligner:     aligner,
		Images:      fallbackImages,
		Media:       media,
		Recorder:    recorders,
		Uploader:    uploader,
		Log:         log,
	})
	if err != nil {
		return err
	}

	workers, err := strconv.Atoi(env.Workers)
	if err != nil || workers < 1 {
		log.WithField("workers", env.Workers).Warn("invalid WORKERS, using 1")
		workers = 1
	}
	dispatcher := worker.NewDispatcher(workers, jobQueueSize, log)
	dispatcher.Run(ctx)

	queue := &jobs.Queue{Store: store, Dispatcher: dispatcher, Runner: asm, Recorder: external, Log: log}
	app := api.NewApp(api.NewApplicationHandler(queue, fallbackImages, log), log)

	listenErr := make(chan error, 1)
	go func() {
		log.WithField("port", env.Port).Info("http server listening")
		listenErr <- app.Listen(":" + env.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-listenErr:
		dispatcher.Stop()
		return err
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.WithError(err).Warn("http server shutdown")
	}
	dispatcher.Stop()
	return nil
}
