package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"triplecheck/internal/bootstrap"
	"triplecheck/internal/platform/config"
	"triplecheck/internal/platform/logger"
	"triplecheck/internal/validation/service"
)

type commandContext struct {
	schemaFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(schemaFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		schemaFlag:   schemaFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.FromEnv()
		if err != nil {
			c.configErr = err
			return
		}
		if c.schemaFlag != nil && strings.TrimSpace(*c.schemaFlag) != "" {
			cfg.Engine.SchemaFile = strings.TrimSpace(*c.schemaFlag)
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

// engine builds an in-process engine. Reports stay in memory; the CLI never
// touches the configured stores or the verdict stream.
func (c *commandContext) engine(cmd *cobra.Command) (*service.Service, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if c.logLevelFlag != nil {
		level = *c.logLevelFlag
	}
	log := logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")

	settings, err := bootstrap.EngineSettings(*cfg, log, nil)
	if err != nil {
		return nil, err
	}
	return service.New(settings, service.WithLogger(log))
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// decodeJSON keeps numbers as json.Number so large identifiers and prices
// survive unchanged.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}
	return nil
}
