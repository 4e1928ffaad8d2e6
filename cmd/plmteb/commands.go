package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oceanbase/plmteb-go/pkg/benchmark"
	"github.com/oceanbase/plmteb-go/pkg/core"
	"github.com/oceanbase/plmteb-go/pkg/evaluator"
	"github.com/oceanbase/plmteb-go/pkg/ledger"
	"github.com/oceanbase/plmteb-go/pkg/metrics"
	"github.com/oceanbase/plmteb-go/pkg/prepare"
	"github.com/oceanbase/plmteb-go/pkg/task"
)

func newRunCmd(logOpts *logOptions) *cobra.Command {
	args := core.NewArgs()
	var (
		envFile     string
		metricsFile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Evaluate every configured model on every task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLogger(logOpts, func(logger *zap.Logger) error {
				env, err := loadEnv(envFile)
				if err != nil {
					return err
				}
				infos, err := args.LoadModelInfos()
				if err != nil {
					return err
				}
				catalog, err := benchmark.DefaultCatalog(args.DataDir)
				if err != nil {
					return err
				}

				var l ledger.Ledger
				if args.Resume {
					if l, err = openLedger(env); err != nil {
						return err
					}
					defer func() { _ = l.Close() }()
				}

				collector := metrics.NewCollector(logger)
				ev, err := evaluator.New(evaluator.Options{
					ModelInfos: infos,
					Tasks:      task.Tasks,
					Resolver: &task.Resolver{
						NewTasks:  task.NewTasks(args.DataDir),
						Catalog:   catalog,
						Languages: task.DefaultLanguages,
					},
					Runner:    benchmark.NewRunner(logger),
					Env:       env,
					OutputDir: args.OutputDir,
					Ledger:    l,
					Metrics:   collector,
					Logger:    logger,
				})
				if err != nil {
					return err
				}

				runErr := ev.Run(cmd.Context())
				if metricsFile != "" {
					if err := collector.WriteTextfile(metricsFile); err != nil && runErr == nil {
						return err
					}
				}
				return runErr
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&args.ModelsConfig, "models-config", core.DefaultModelsConfig, "models configuration file (JSON or YAML)")
	flags.StringVar(&args.OutputDir, "output-dir", core.DefaultOutputDir, "results root")
	flags.StringVar(&args.DataDir, "data-dir", core.DefaultDataDir, "prepared datasets root")
	flags.BoolVar(&args.Resume, "resume", false, "skip (model, task) pairs recorded in the ledger")
	flags.StringVar(&envFile, "env-file", "", ".env file to load (default: search upwards)")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	return cmd
}

func loadEnv(path string) (*core.Env, error) {
	if path != "" {
		return core.LoadEnvFile(path)
	}
	return core.LoadEnv()
}

// openLedger reads the ledger settings only when a ledger is needed.
func openLedger(env *core.Env) (ledger.Ledger, error) {
	cfg, err := env.LedgerConfig()
	if err != nil {
		return nil, err
	}
	return evaluator.OpenLedger(cfg)
}

func newPrepareCmd(logOpts *logOptions) *cobra.Command {
	var rawDir, outDir string
	cmd := &cobra.Command{
		Use:   "prepare [task...]",
		Short: "Convert raw dataset exports into the local task layout",
		Long:  "Converts raw exports under --raw-dir into the datasets read by the locally prepared tasks. Without arguments every routine runs.",
		RunE: func(cmd *cobra.Command, names []string) error {
			return withLogger(logOpts, func(logger *zap.Logger) error {
				p := prepare.New(rawDir, outDir, logger)
				if len(names) == 0 {
					return p.RunAll(cmd.Context())
				}
				for _, name := range names {
					if err := p.Run(cmd.Context(), name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rawDir, "raw-dir", "raw", "raw exports root")
	cmd.Flags().StringVar(&outDir, "data-dir", core.DefaultDataDir, "prepared datasets root")
	return cmd
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List the evaluation tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			local := task.LocalDirs()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tTYPE\tSPLITS\tSOURCE")
			for _, t := range task.Tasks {
				source := "catalog"
				if dir, ok := local[t.Name]; ok {
					source = "local:" + dir
				}
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", t.Name, t.Type, task.EvalSplits(t.Name), source)
			}
			return w.Flush()
		},
	}
}

func newLedgerCmd(logOpts *logOptions) *cobra.Command {
	var envFile string
	open := func() (ledger.Ledger, error) {
		env, err := loadEnv(envFile)
		if err != nil {
			return nil, err
		}
		return openLedger(env)
	}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or reset the completed-pairs ledger",
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file to load (default: search upwards)")

	listCmd := &cobra.Command{
		Use:   "list [model-short-name]",
		Short: "List completed (model, task) pairs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(logOpts, func(*zap.Logger) error {
				l, err := open()
				if err != nil {
					return err
				}
				defer func() { _ = l.Close() }()

				model := ""
				if len(args) == 1 {
					model = args[0]
				}
				entries, err := l.List(cmd.Context(), model)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "MODEL\tTASK\tSPLIT\tRUN\tCOMPLETED")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Model, e.Task, e.Split, e.RunID, e.CompletedAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset [model-short-name]",
		Short: "Forget completed pairs of one model, or of all models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLogger(logOpts, func(logger *zap.Logger) error {
				l, err := open()
				if err != nil {
					return err
				}
				defer func() { _ = l.Close() }()

				model := ""
				if len(args) == 1 {
					model = args[0]
				}
				if err := l.Reset(cmd.Context(), model); err != nil {
					return err
				}
				logger.Info("ledger reset", zap.String("model", model))
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, resetCmd)
	return cmd
}
