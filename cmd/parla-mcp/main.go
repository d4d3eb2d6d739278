// Package main provides the parla-mcp binary, an MCP stdio server that lets
// agents drive lesson scenarios.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/parla/pkg/bootstrap"
	"github.com/ormasoftchile/parla/pkg/config"
	pmcp "github.com/ormasoftchile/parla/pkg/mcp"
)

var version = "dev"

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("PARLA_CONFIG"))
	if err != nil {
		return err
	}
	rt, err := bootstrap.Build(ctx, cfg, bootstrap.Options{Version: version})
	if err != nil {
		return err
	}
	defer rt.Close(ctx)
	return server.ServeStdio(pmcp.NewServer(version, rt.Engine))
}
