//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/ragserver/internal/bootstrap"
	"github.com/yanqian/ragserver/internal/infra/config"
	httpiface "github.com/yanqian/ragserver/internal/interface/http"
	"github.com/yanqian/ragserver/pkg/logger"
)

// initializeApp documents the dependency graph that cmd/app/providers.go
// builds by hand. This file only compiles under the wireinject build tag;
// providers.go is written by hand, not generated from it, and the
// wire.Build list names only the config, logger, HTTP handler/router and
// app providers, since the ports in this graph (embedder/vector-store/
// staging backend selection) branch on config in ways wire.Build's static
// graph can't express directly.
func initializeApp() (*bootstrap.App, error) {
	wire.Build(
		config.Load,
		logger.New,
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil
}
