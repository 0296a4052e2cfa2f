package main

import (
	"github.com/fastprodman/billwallet/internal/app"
	"github.com/fastprodman/billwallet/internal/config"
)

type apiConfig struct {
	app.Config

	Port            uint16 `env:"API_PORT" default:"8080"`
	DefaultProvider string `env:"API_DEFAULT_PROVIDER" default:"vtpass"`
	Auth            config.AuthConfig
}
