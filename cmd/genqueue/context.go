package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"genqueue/internal/api"
	"genqueue/internal/config"
	"genqueue/internal/generation"
	"genqueue/internal/kv"
	"genqueue/internal/logging"
	"genqueue/internal/notifications"
	"genqueue/internal/poller"
	"genqueue/internal/queue"
	"genqueue/internal/render"
)

type commandContext struct {
	configFlag *string
	kindFlag   *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
}

func newCommandContext(configFlag, kindFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		kindFlag:   kindFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) kind() string {
	if c.kindFlag == nil {
		return "image"
	}
	return strings.TrimSpace(*c.kindFlag)
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// session is everything one command needs to act on a variant's queue.
type session struct {
	cfg        *config.Config
	variant    generation.Variant
	backend    kv.Backend
	store      *queue.Store
	controller *generation.Controller
	notifier   notifications.Service
	logger     *slog.Logger
}

func (s *session) Close() {
	if s != nil && s.backend != nil {
		_ = s.backend.Close()
	}
}

// openSession loads the variant's queue and builds its controller. Board
// events go to out.
func (c *commandContext) openSession(ctx context.Context, out io.Writer) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	variant, err := generation.VariantFor(cfg, c.kind())
	if err != nil {
		return nil, err
	}
	backend, err := kv.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	logger := c.log()
	store := queue.New(backend, queue.Options{
		Namespace: variant.Name(),
		UserKey:   cfg.Store.UserKey,
		Logger:    logger,
	})
	store.Reload(ctx)

	notifier := notifications.NewService(cfg)
	board := render.NewBoard(render.Options{Writer: out, Variant: variant.Name(), Logger: logger})
	controller, err := generation.NewController(generation.Deps{
		Variant:    variant,
		Store:      store,
		API:        api.FromConfig(cfg, variant.Kind, logger),
		Board:      board,
		Logger:     logger,
		Visibility: poller.TerminalVisibility(os.Stdin),
		Notifier:   notifier,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &session{
		cfg:        cfg,
		variant:    variant,
		backend:    backend,
		store:      store,
		controller: controller,
		notifier:   notifier,
		logger:     logger,
	}, nil
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(*session) error) error {
	sess, err := c.openSession(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(sess)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
