// Command singleton loads a namespace manifest, fetches the declared scripts
// and prints the resulting HTML document or the namespace graph.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/chenyanchen/singleton"
	"github.com/chenyanchen/singleton/dom"
	"github.com/chenyanchen/singleton/manifest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "singleton",
		Short: "Load singleton namespace manifests into an HTML document",
		Long: `singleton builds the namespaces declared in a YAML manifest, injects their
stylesheets and fetches their scripts into an HTML document.

Every flag can also be set through SINGLETON_<FLAG> environment variables,
for example SINGLETON_BASE_URL.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			a.v.SetEnvPrefix("SINGLETON")
			a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			a.v.AutomaticEnv()

			config := zap.NewProductionConfig()
			if a.v.GetBool("verbose") {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	root.AddCommand(a.loadCmd(), a.graphCmd())
	return root
}

func (a *app) loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <manifest.yaml>",
		Short: "Load every declared dependency and print the document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoad(cmd, args[0])
		},
	}
	cmd.Flags().String("base-url", "", "base URL relative script URLs are resolved against")
	cmd.Flags().String("document", "", "HTML file to inject into instead of an empty document")
	cmd.Flags().Int("admission", singleton.DefaultAdmission.MaxUnsettled, "unsettled instances allowed at once (0 = unlimited)")
	return cmd
}

func (a *app) graphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <manifest.yaml>",
		Short: "Print the namespace and dependency graph without loading anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runGraph(cmd, args[0])
		},
	}
	cmd.Flags().String("format", "dot", "output format: dot or mermaid")
	return cmd
}

func (a *app) runLoad(cmd *cobra.Command, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	doc, err := a.document()
	if err != nil {
		return err
	}

	rt := singleton.New(
		singleton.WithContext(cmd.Context()),
		singleton.WithDocument(doc),
		singleton.WithFetcher(singleton.HTTPFetcher{Client: &http.Client{}, BaseURL: a.v.GetString("base-url")}),
		singleton.WithLogger(a.logger),
		singleton.WithAdmission(singleton.Admission{MaxUnsettled: a.v.GetInt("admission")}),
	)
	if _, err := m.Apply(rt); err != nil {
		return err
	}
	rt.Ready()

	waitErr := rt.Wait(cmd.Context())
	if errors.Is(waitErr, context.Canceled) {
		return waitErr
	}
	a.logger.Info("manifest loaded",
		zap.String("manifest", path),
		zap.Int("instances", len(rt.Instances())),
		zap.Bool("failed", waitErr != nil),
	)
	if err := doc.Render(cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	if waitErr != nil {
		return fmt.Errorf("load dependencies: %w", waitErr)
	}
	return nil
}

func (a *app) runGraph(cmd *cobra.Command, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	// The runtime never becomes ready, so nothing is fetched.
	rt := singleton.New(singleton.WithLogger(a.logger))
	if _, err := m.Apply(rt); err != nil {
		return err
	}

	g := rt.Graph()
	switch format := a.v.GetString("format"); format {
	case "dot":
		_, err = fmt.Fprint(cmd.OutOrStdout(), g.DOT())
	case "mermaid":
		_, err = fmt.Fprint(cmd.OutOrStdout(), g.Mermaid())
	default:
		return fmt.Errorf("unknown graph format %q", format)
	}
	return err
}

func (a *app) document() (*dom.Document, error) {
	path := a.v.GetString("document")
	if path == "" {
		return dom.New(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()
	return dom.Parse(f)
}
