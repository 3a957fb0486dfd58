package main

import (
	"context"
	"fmt"
	"os"

	"github.com/llmspell/spellkernel/src/kernel/app"
	"github.com/llmspell/spellkernel/src/kernel/handler/kernel"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/multierr"
)

func opts() fx.Option {
	return fx.Options(
		app.Module,
	)
}

// flags override configuration through the environment variables the config files expand.
type flags struct {
	configDir      string
	connectionFile string
	transport      string
	protocol       string
	environment    string
}

func (f flags) apply() error {
	for env, value := range map[string]string{
		"SPELLKERNEL_CONFIG_DIR":      f.configDir,
		"SPELLKERNEL_CONNECTION_FILE": f.connectionFile,
		"SPELLKERNEL_TRANSPORT":       f.transport,
		"SPELLKERNEL_PROTOCOL":        f.protocol,
		"SPELLKERNEL_ENVIRONMENT":     f.environment,
	} {
		if value == "" {
			continue
		}
		if err := os.Setenv(env, value); err != nil {
			return fmt.Errorf("setting %s: %w", env, err)
		}
	}
	return nil
}

func newRootCommand(run func(context.Context) error) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "spellkernel",
		Short:        "Run scripts for LLM clients over the Jupyter messaging protocol",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.apply(); err != nil {
				return err
			}
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&f.configDir, "config-dir", "", "directory holding meta.yaml")
	cmd.Flags().StringVarP(&f.connectionFile, "connection-file", "f", "", "where to write the connection file")
	cmd.Flags().StringVar(&f.transport, "transport", "", "transport kind: tcp, zmq or inproc")
	cmd.Flags().StringVar(&f.protocol, "protocol", "", "wire protocol: jupyter or jsonrpc")
	cmd.Flags().StringVar(&f.environment, "environment", "", "configuration environment: local or production")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the kernel version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "spellkernel", kernel.Version)
		},
	})
	return cmd
}

// serve runs the application until it is signalled or a client shuts the kernel down.
func serve(ctx context.Context) error {
	a := fx.New(opts())
	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("starting kernel: %w", err)
	}

	sig := <-a.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancel()
	err := a.Stop(stopCtx)
	if sig.ExitCode != 0 {
		err = multierr.Append(err, fmt.Errorf("exit code %d", sig.ExitCode))
	}
	return err
}

func main() {
	if err := newRootCommand(serve).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
