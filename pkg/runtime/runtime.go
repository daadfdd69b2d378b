package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	appconfig "github.com/saker-ai/phoneai-client/internal/config"
	apphttp "github.com/saker-ai/phoneai-client/internal/http"
	applogger "github.com/saker-ai/phoneai-client/internal/logger"
	"github.com/saker-ai/phoneai-client/internal/storage"
	"github.com/saker-ai/phoneai-client/pkg/realtime"
)

// Option customizes a Runtime.
type Option func(*options)

type options struct {
	callbacks realtime.Callbacks
	logger    *zap.Logger
	dial      realtime.DialFunc
	overrides []func(*appconfig.Config)
}

// WithCallbacks adds session callbacks. They run after the runtime's own.
func WithCallbacks(callbacks realtime.Callbacks) Option {
	return func(o *options) { o.callbacks = callbacks }
}

// WithLogger replaces the logger built from configuration.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDial overrides the websocket dialer.
func WithDial(dial realtime.DialFunc) Option {
	return func(o *options) { o.dial = dial }
}

// WithConfig applies fn to the loaded configuration before it is used.
func WithConfig(fn func(*appconfig.Config)) Option {
	return func(o *options) { o.overrides = append(o.overrides, fn) }
}

// Runtime represents a runtime.
type Runtime struct {
	cfg      appconfig.Config
	logger   *zap.Logger
	client   *realtime.Client
	recorder *storage.Recorder
	server   *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New executes the new function.
func New(configPath string, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load phoneai config: %w", err)
	}
	for _, fn := range o.overrides {
		fn(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger, err = applogger.New(cfg.Log)
		if err != nil {
			logger, _ = zap.NewProduction()
		}
		logger.Info("phoneai logger configured",
			zap.String("level", cfg.Log.Level),
			zap.Bool("stdout", cfg.Log.Stdout),
			zap.Bool("file_enabled", cfg.Log.File.Enabled),
			zap.String("file_path", cfg.Log.File.Path),
			zap.String("file_name", cfg.Log.File.Name),
		)
	}
	logger.Info("phoneai config loaded",
		zap.String("config_path", configPath),
		zap.String("root_dir", cfg.RootDir),
		zap.String("endpoint_url", cfg.EndpointURL),
		zap.String("http_addr", cfg.HTTPAddr),
	)

	var recorder *storage.Recorder
	if cfg.Recordings.Enabled {
		recorder, err = storage.NewRecorder(cfg.Recordings.Dir, cfg.Audio.SampleRate, cfg.Audio.Channels, logger)
		if err != nil {
			return nil, fmt.Errorf("create recorder: %w", err)
		}
	}

	header := http.Header{}
	for key, value := range cfg.Headers {
		header.Set(key, value)
	}
	client := realtime.NewClient(realtime.Config{
		URL:    cfg.EndpointURL,
		Header: header,
		Dial:   o.dial,
	}, chainCallbacks(recorder, logger, o.callbacks), logger)

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
	r.server = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: apphttp.NewRouter(cfg, &session{Client: client, runtime: r}, logger),
	}
	return r, nil
}

// chainCallbacks routes agent audio to the recorder before the caller's hooks.
func chainCallbacks(recorder *storage.Recorder, logger *zap.Logger, user realtime.Callbacks) realtime.Callbacks {
	if recorder == nil {
		return user
	}
	return realtime.Callbacks{
		OnAudioChunk: func(samples []int16) {
			if err := recorder.Append(samples); err != nil {
				logger.Warn("recording append failed", zap.Error(err))
			}
			if user.OnAudioChunk != nil {
				user.OnAudioChunk(samples)
			}
		},
		OnAudioStreamDone: func() {
			if _, err := recorder.Finish(); err != nil {
				logger.Warn("recording finish failed", zap.Error(err))
			}
			if user.OnAudioStreamDone != nil {
				user.OnAudioStreamDone()
			}
		},
		OnChange:  user.OnChange,
		OnWarning: user.OnWarning,
	}
}

// Start opens the session connection. It does not wait for readiness.
func (r *Runtime) Start() {
	r.client.Connect(r.ctx)
}

// Reconnect replaces the session connection and waits until it is open or
// ctx ends.
func (r *Runtime) Reconnect(ctx context.Context) error {
	r.client.Connect(r.ctx)
	return r.client.WaitReady(ctx)
}

// Run serves the control API until Shutdown.
func (r *Runtime) Run() error {
	r.logger.Info("starting control api", zap.String("addr", r.cfg.HTTPAddr))
	err := r.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Client returns the session client.
func (r *Runtime) Client() *realtime.Client {
	return r.client
}

// Config returns the effective configuration.
func (r *Runtime) Config() appconfig.Config {
	return r.cfg
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.logger
}

// Addr executes the addr method.
func (r *Runtime) Addr() string {
	return r.server.Addr
}

// Shutdown stops the control API, closes the session and flushes recordings.
func (r *Runtime) Shutdown(ctx context.Context) error {
	err := ignoreServerClosed(r.server.Shutdown(ctx))
	r.cancel()
	r.client.Close()
	if r.recorder != nil {
		err = errors.Join(err, r.recorder.Close())
	}
	_ = r.logger.Sync()
	return err
}

func ignoreServerClosed(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// session adapts the client to the control API.
type session struct {
	*realtime.Client
	runtime *Runtime
}

func (s *session) Reconnect(ctx context.Context) error {
	return s.runtime.Reconnect(ctx)
}
