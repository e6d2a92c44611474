package parser

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

type Config struct {
	MinContentLength int           `envconfig:"PARSER_MIN_CONTENT_LENGTH" default:"30"`
	DateWindow       time.Duration `envconfig:"PARSER_DATE_WINDOW" default:"720h"`
	LabelRulesFile   string        `envconfig:"PARSER_LABEL_RULES_FILE" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// NewFromConfig builds a Parser, loading label rules from the configured file if any.
func NewFromConfig(cfg Config) (*Parser, error) {
	opts := Options{
		MinContentLength: cfg.MinContentLength,
		DateWindow:       cfg.DateWindow,
		Logger:           logrus.WithField("component", "parser"),
	}
	if cfg.LabelRulesFile != "" {
		rules, err := LoadLabelRules(cfg.LabelRulesFile)
		if err != nil {
			return nil, err
		}
		opts.LabelRules = rules
	}
	return NewParser(opts), nil
}
