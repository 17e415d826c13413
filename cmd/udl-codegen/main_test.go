package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/udl-dev/udl/internal/codegen"
)

func withConfigPath(t *testing.T, path string) {
	t.Helper()
	prev := flags.configPath
	flags.configPath = path
	t.Cleanup(func() { flags.configPath = prev })
}

func TestLoadFileConfigRespectsEmitOptOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "udl.config.yaml")
	doc := "codegen:\n  output: ./gen\n  emitInternal: false\n"
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	withConfigPath(t, path)

	cfg, _, used, err := loadFileConfig()
	if err != nil {
		t.Fatal(err)
	}
	if used != path {
		t.Errorf("config path = %q", used)
	}
	if cfg.EmitInternal {
		t.Error("explicit emitInternal: false ignored")
	}
	if !cfg.EmitJSDoc {
		t.Error("unset emitJsdoc lost its default")
	}
	if cfg.OutputDir != "./gen" {
		t.Errorf("output = %q", cfg.OutputDir)
	}
}

func TestLoadFileConfigMissingFileDefaultsOn(t *testing.T) {
	withConfigPath(t, filepath.Join(t.TempDir(), "udl.config.yaml"))

	cfg, _, used, err := loadFileConfig()
	if err != nil {
		t.Fatal(err)
	}
	if used != "" {
		t.Errorf("config path = %q for missing file", used)
	}
	if !cfg.EmitInternal || !cfg.EmitJSDoc {
		t.Error("missing config must default the emit switches on")
	}
}

func TestApplyFlagOverridesOnlyWhenSet(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().BoolVar(&flags.noInternal, "no-internal", false, "")
	cmd.Flags().BoolVar(&flags.noJSDoc, "no-jsdoc", false, "")

	base := codegen.Config{EmitInternal: true, EmitJSDoc: true}
	if got := applyFlagOverrides(cmd, base); !got.EmitInternal || !got.EmitJSDoc {
		t.Error("unset flags must not clobber the merged config")
	}

	if err := cmd.Flags().Set("no-internal", "true"); err != nil {
		t.Fatal(err)
	}
	flags.noInternal = true
	if got := applyFlagOverrides(cmd, base); got.EmitInternal {
		t.Error("--no-internal did not switch the descriptor off")
	}
	flags.noInternal = false
}
