package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/nbenliogludev/go-browser-use/internal/config"
	"github.com/nbenliogludev/go-browser-use/internal/observability"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	noPlan  bool

	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

func newApp(out io.Writer) *app {
	return &app{v: viper.New(), out: out}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agent-cli",
		Short: "Plan a task with an LLM and carry it out in a real browser.",
		Long: `agent-cli turns a natural-language task into a step-by-step plan and
hands the plan to a browser agent that clicks, types and scrolls until the
task is done.

Credentials can be referenced inside the task as ${VAR}; they are read from
the environment right before the browser run and never sent to the planner.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
		RunE:              a.runTask,
	}
	root.SetOut(a.out)

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.StringP("task", "t", "", "task description (default is the Google Flights example)")
	flags.String("start-url", "", "open this URL before the agent starts and keep the agent on its site")
	flags.Int("max-steps", 0, "maximum number of agent steps")
	flags.String("driver", "", "browser driver: chromedp or playwright")
	flags.Bool("headless", false, "run the browser without a window")
	flags.BoolVar(&a.noPlan, "no-plan", false, "skip the task planner and give the raw task to the agent")
	flags.String("save-history", "", "write the run history as YAML to this path")

	for key, flag := range map[string]string{
		"run.task":         "task",
		"run.start_url":    "start-url",
		"agent.max_steps":  "max-steps",
		"browser.driver":   "driver",
		"browser.headless": "headless",
		"run.save_history": "save-history",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Plan the task and run the browser agent (default)",
		RunE:  a.runTask,
	})
	root.AddCommand(&cobra.Command{
		Use:   "plan",
		Short: "Only generate the task plan and print it as JSON",
		RunE:  a.planTask,
	})
	return root
}

// loadConfig reads config.yaml, AGENT_* environment variables and flags,
// then sets up logging.
func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("config")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("AGENT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()
	config.SetDefaults(a.v)

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if cmd.Flags().Changed("no-plan") {
		a.v.Set("agent.plan_first", !a.noPlan)
	}

	cfg, err := config.NewConfigFromViper(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger)
	a.logger = observability.GetLogger()
	a.logger.Debug("Configuration loaded",
		zap.String("config_file", a.v.ConfigFileUsed()),
		zap.String("model", cfg.LLM.Model),
		zap.String("driver", cfg.Browser.Driver),
	)
	return nil
}
