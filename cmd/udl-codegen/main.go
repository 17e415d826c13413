// Command udl-codegen generates typed client bindings: TypeScript
// declarations, runtime type guards, and typed GraphQL operation
// documents, from an introspected endpoint, a sample JSON response, or
// the project's live node store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/udl-dev/udl/internal/actions"
	"github.com/udl-dev/udl/internal/codegen"
	"github.com/udl-dev/udl/internal/refs"
	"github.com/udl-dev/udl/internal/source"
	"github.com/udl-dev/udl/internal/store"
	"github.com/udl-dev/udl/internal/version"
	"github.com/udl-dev/udl/internal/webhook"
)

var flags struct {
	endpoint     string
	fromResponse string
	typeName     string
	fromStore    bool
	output       string
	guards       bool
	watch        bool
	clean        bool
	dryRun       bool
	configPath   string
	noInternal   bool
	noJSDoc      bool
	exportType   bool
}

var rootCmd = &cobra.Command{
	Use:           "udl-codegen",
	Short:         "Generate typed client bindings from the data layer",
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.endpoint, "endpoint", "e", "", "GraphQL endpoint to introspect")
	f.StringVarP(&flags.fromResponse, "from-response", "r", "", "Infer types from a sample JSON response file")
	f.StringVarP(&flags.typeName, "type", "t", "", "Type name for --from-response")
	f.BoolVarP(&flags.fromStore, "from-store", "s", false, "Infer types from the project's node store")
	f.StringVarP(&flags.output, "output", "o", "", "Output directory (default ./generated)")
	f.BoolVarP(&flags.guards, "guards", "g", false, "Emit runtime type guards")
	f.BoolVarP(&flags.watch, "watch", "w", false, "Watch operation roots and regenerate on change")
	f.BoolVarP(&flags.clean, "clean", "c", false, "Remove stale generated files")
	f.BoolVarP(&flags.dryRun, "dry-run", "d", false, "Report planned writes without touching disk")
	f.StringVarP(&flags.configPath, "config", "C", "", "Config file (default: udl.config.yaml/json in cwd)")
	f.BoolVar(&flags.noInternal, "no-internal", false, "Skip the internal descriptor field")
	f.BoolVar(&flags.noJSDoc, "no-jsdoc", false, "Skip JSDoc comments")
	f.BoolVar(&flags.exportType, "export-type", false, "Emit type aliases instead of interfaces")
}

func run(cmd *cobra.Command) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fileCfg, plugins, configPath, err := loadFileConfig()
	if err != nil {
		return err
	}
	cfg := applyFlagOverrides(cmd, fileCfg.Merge(cliConfig()))
	if cfg.OutputDir == "" {
		cfg.OutputDir = "./generated"
	}

	src, err := buildSource(plugins)
	if err != nil {
		return err
	}

	gen := codegen.NewGenerator()
	if flags.watch {
		return gen.Watch(ctx, src, cfg, configPath)
	}

	results, err := gen.Generate(ctx, src, cfg)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%-10s %s\n", r.Status, r.Path)
	}
	return nil
}

// loadFileConfig reads the codegen section and plugin list from the
// project config. Missing files are fine; a broken file is an error.
func loadFileConfig() (codegen.Config, []source.Ref, string, error) {
	v := viper.New()
	if flags.configPath != "" {
		v.SetConfigFile(flags.configPath)
	} else {
		v.SetConfigName("udl.config")
		v.AddConfigPath(".")
	}

	defaults := codegen.Config{EmitInternal: true, EmitJSDoc: true}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return defaults, nil, "", nil
		}
		return codegen.Config{}, nil, "", fmt.Errorf("reading config: %w", err)
	}

	var fileCfg struct {
		Plugins []source.Ref   `mapstructure:"plugins"`
		Codegen codegen.Config `mapstructure:"codegen"`
	}
	if err := v.Unmarshal(&fileCfg); err != nil {
		return codegen.Config{}, nil, "", fmt.Errorf("parsing config: %w", err)
	}
	// Internal descriptor and JSDoc default on: an unmarshalled false is
	// indistinguishable from an unset key, so probe the file for an
	// explicit opt-out.
	if !v.IsSet("codegen.emitInternal") {
		fileCfg.Codegen.EmitInternal = defaults.EmitInternal
	}
	if !v.IsSet("codegen.emitJsdoc") {
		fileCfg.Codegen.EmitJSDoc = defaults.EmitJSDoc
	}
	return fileCfg.Codegen, fileCfg.Plugins, v.ConfigFileUsed(), nil
}

// applyFlagOverrides lets the no- flags switch off the internal
// descriptor and JSDoc, but only when actually passed: the config
// file's choice stands otherwise.
func applyFlagOverrides(cmd *cobra.Command, cfg codegen.Config) codegen.Config {
	if cmd.Flags().Changed("no-internal") {
		cfg.EmitInternal = !flags.noInternal
	}
	if cmd.Flags().Changed("no-jsdoc") {
		cfg.EmitJSDoc = !flags.noJSDoc
	}
	return cfg
}

// cliConfig turns the flag set into a config overlay; set flags win
// over the file during Merge.
func cliConfig() codegen.Config {
	return codegen.Config{
		Endpoint:   flags.endpoint,
		OutputDir:  flags.output,
		Guards:     flags.guards,
		Clean:      flags.clean,
		DryRun:     flags.dryRun,
		ExportType: flags.exportType,
	}
}

// buildSource picks the definition source from the flags. For
// --from-store the registered plugins are loaded into a fresh store
// first.
func buildSource(plugins []source.Ref) (codegen.Source, error) {
	switch {
	case flags.fromResponse != "":
		if flags.typeName == "" {
			return codegen.Source{}, fmt.Errorf("--from-response requires --type")
		}
		return codegen.Source{ResponseFile: flags.fromResponse, TypeName: flags.typeName}, nil
	case flags.fromStore:
		st := store.New()
		refsReg := refs.NewRegistry()
		loader := source.NewLoader(
			actions.Context{Store: st},
			refsReg,
			webhook.NewRegistry(),
		)
		baseDir, _ := filepath.Abs(".")
		if err := loader.Load(plugins, baseDir); err != nil {
			return codegen.Source{}, fmt.Errorf("loading plugins: %w", err)
		}
		return codegen.Source{Store: st, Refs: refsReg}, nil
	case flags.endpoint != "":
		return codegen.Source{Endpoint: true}, nil
	default:
		return codegen.Source{}, fmt.Errorf("choose a source: --endpoint, --from-response, or --from-store")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
