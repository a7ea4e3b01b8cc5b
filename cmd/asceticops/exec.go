package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/client"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/config"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine"
	pgengine "github.com/krew-solutions/ascetic-ops-go/asceticops/engine/pg"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/engine/rest"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/promise"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/session/pg"
)

const (
	modeStandalone  = "standalone"
	modeBatch       = "batch"
	modeInteractive = "interactive"
)

var execCmd = &cobra.Command{
	Use:   "exec [statement...]",
	Short: "Execute raw statements",
	Long: `Executes every statement as a deferred raw operation. Statements
starting with SELECT or WITH return rows, others the number of
affected rows. Results are printed as JSON in statement order.`,
	Args: cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd, v)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		e, closeEngine, err := newEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeEngine()

		c := client.New(engine.WithMetrics(e, cfg.Engine), cfg.ClientOptions())
		results, err := runStatements(ctx, c, mode, args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	execCmd.Flags().String("mode", modeStandalone, "How to run the statements (standalone, batch or interactive)")
}

func newEngine(ctx context.Context, c *config.Config) (promise.Engine, func(), error) {
	switch c.Engine {
	case config.EngineRest:
		return rest.NewEngine(c.EngineEndpoint), func() {}, nil
	default:
		pool, err := pg.Connect(ctx, c.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pgengine.NewEngine(pool), pool.Close, nil
	}
}

func runStatements(ctx context.Context, c *client.Client, mode string, statements []string) ([]any, error) {
	switch mode {
	case modeStandalone:
		return awaitAll(ctx, operations(ctx, c, statements))
	case modeBatch:
		return c.Batch(ctx, operations(ctx, c, statements))
	case modeInteractive:
		var results []any
		err := c.Transaction(ctx, func(tx *client.Client) error {
			var err error
			results, err = awaitAll(ctx, operations(ctx, tx, statements))
			return err
		})
		return results, err
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

func operations(ctx context.Context, c *client.Client, statements []string) []promise.Operation {
	ops := make([]promise.Operation, len(statements))
	for i, s := range statements {
		if returnsRows(s) {
			ops[i] = c.QueryRaw(ctx, s)
		} else {
			ops[i] = c.ExecuteRaw(ctx, s)
		}
	}
	return ops
}

// awaitAll runs the operations one after another.
func awaitAll(ctx context.Context, ops []promise.Operation) ([]any, error) {
	results := make([]any, len(ops))
	for i, op := range ops {
		d, err := op.Dispatch(nil)
		if err != nil {
			return nil, err
		}
		if results[i], err = d.Await(ctx); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func returnsRows(statement string) bool {
	fields := strings.Fields(statement)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "VALUES", "SHOW", "TABLE":
		return true
	}
	return false
}
