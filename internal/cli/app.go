package cli

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"workctl/internal/config"
	"workctl/internal/control"
	"workctl/internal/executor"
	"workctl/internal/logger"
	"workctl/internal/runner"
	"workctl/internal/server"
	"workctl/internal/workload"
)

// app wires the pieces a command needs to run trees.
type app struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	registry *workload.Registry
	pool     *executor.Pool
	runner   *runner.Runner
	reporter *logger.Reporter
	srv      *http.Server
	cancel   context.CancelFunc
}

func newApp(ctx context.Context, cfg config.Config) *app {
	ctx, cancel := context.WithCancel(ctx)
	a := &app{
		cfg:      cfg,
		log:      logger.For("cli"),
		registry: workload.DefaultRegistry(),
		pool:     executor.NewPool(ctx, cfg.Workers, logger.For("executor")),
		runner:   runner.New(logger.For("runner")),
		reporter: logger.NewReporter(logger.For("supervision")),
		cancel:   cancel,
	}
	a.runner.Start(ctx)
	if cfg.MetricsAddr != "" {
		a.srv = server.Start(cfg.MetricsAddr, a.runner, logger.For("server"))
	}
	return a
}

// budgetFrom is the budget of supervisors that set none in the tree file.
func budgetFrom(cfg config.Config) control.Budget {
	return control.Budget{
		CheckInterval: cfg.CheckInterval,
		RunFor:        cfg.RunFor,
		AbortAfter:    cfg.AbortAfter,
		Iterations:    cfg.Iterations,
	}
}

// build turns a tree description into nodes owned by a fresh key.
func (a *app) build(tree *config.TreeNode) (*workload.Tree, error) {
	return a.registry.Build(tree, control.NewDisposeKey(), budgetFrom(a.cfg),
		control.WithExecutor(a.pool),
		control.WithReporter(a.reporter),
		control.WithLogger(logger.For("control")),
	)
}

func (a *app) close() {
	a.runner.Close()
	a.pool.Close()
	if a.srv != nil {
		server.Shutdown(a.srv, a.log)
	}
	a.cancel()
}

// loadTree reads path, or returns the demo tree when path is empty.
func loadTree(path string) (*config.TreeNode, error) {
	if path == "" {
		return DemoTree(), nil
	}
	return config.LoadTree(path)
}
