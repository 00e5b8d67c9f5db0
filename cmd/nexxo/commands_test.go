package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/pathmatch"
)

func writeProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"nexxo.yaml":                "entries: [src/main.ts]\nmode: production\n",
		"src/main.ts":               "import { App } from './App';\nimport 'react';\nApp();\n",
		"src/App.tsx":               "import { Button } from './components/Button';\nexport const App = () => Button;\n",
		"src/components/Button.tsx": "import { Icon } from './Icon';\nexport const Button = Icon;\n",
		"src/components/Icon.tsx":   "import { Button } from './Button';\nexport const Icon = 1;\n",
		"src/app.css":               "body {}\n",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

// run executes the CLI with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flag values persist on the package-level commands between runs
	fingerprintJSON, fingerprintStore, graphJSON, validateStrict, classifyNoGraph, rulesInitForce = false, false, false, false, false, false
	classifyKind = string(hmr.Updated)
	rootFlag, configFlag, logLevelFlag, devListen = "", "", "error", ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// TestRootCommand tests that the root command is properly configured
func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "nexxo" {
		t.Errorf("expected Use 'nexxo', got %q", rootCmd.Use)
	}
	for _, name := range []string{"fingerprint", "graph", "validate", "classify", "dev", "cache", "rules", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("expected subcommand %q", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(out, Version) {
		t.Errorf("expected version %q in output, got %q", Version, out)
	}
}

func TestFingerprintCommand(t *testing.T) {
	root := writeProject(t)

	out, err := run(t, "fingerprint", "--root", root, "--json")
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	var first fingerprintReport
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if first.Input == nil || len(first.Input.SourceFiles) != 5 {
		t.Fatalf("expected 5 source files, got %+v", first.Input)
	}
	if first.Graph == "" || first.Plan == "" {
		t.Error("expected graph and plan fingerprints")
	}
	if first.Output != "" {
		t.Errorf("expected no output fingerprint without a dist directory, got %q", first.Output)
	}

	out, err = run(t, "fingerprint", "--root", root, "--json")
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	var second fingerprintReport
	if err := json.Unmarshal([]byte(out), &second); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if first.Input.InputHash != second.Input.InputHash || first.Graph != second.Graph || first.Plan != second.Plan {
		t.Error("fingerprints changed between identical runs")
	}
}

func TestFingerprintCommand_Store(t *testing.T) {
	root := writeProject(t)

	out, err := run(t, "fingerprint", "--root", root, "--store")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if !strings.Contains(out, "cached: 0 of 5 files") {
		t.Errorf("expected nothing cached on the first run, got:\n%s", out)
	}
	out, err = run(t, "fingerprint", "--root", root, "--store")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(out, "No changes") {
		t.Errorf("expected no changes, got:\n%s", out)
	}
	if !strings.Contains(out, "cached: 5 of 5 files") {
		t.Errorf("expected every file cached, got:\n%s", out)
	}

	if err := os.WriteFile(filepath.Join(root, "src", "app.css"), []byte("body { color: red }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err = run(t, "fingerprint", "--root", root, "--store")
	if err != nil {
		t.Fatalf("third run failed: %v", err)
	}
	if !strings.Contains(out, "M src/app.css") {
		t.Errorf("expected app.css modified, got:\n%s", out)
	}
	if !strings.Contains(out, "cached: 4 of 5 files") {
		t.Errorf("expected the edited file to miss, got:\n%s", out)
	}
}

func TestFingerprintCommand_Output(t *testing.T) {
	root := writeProject(t)
	dist := filepath.Join(root, "dist")
	if err := os.MkdirAll(filepath.Join(dist, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{"main.js": "console.log(1)\n", "assets/app.css": "body{}\n"} {
		if err := os.WriteFile(filepath.Join(dist, filepath.FromSlash(name)), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	fingerprintOf := func() fingerprintReport {
		t.Helper()
		out, err := run(t, "fingerprint", "--root", root, "--json")
		if err != nil {
			t.Fatalf("fingerprint failed: %v", err)
		}
		var report fingerprintReport
		if err := json.Unmarshal([]byte(out), &report); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		return report
	}

	first := fingerprintOf()
	if first.Output == "" || first.Outputs != 2 {
		t.Fatalf("expected an output fingerprint over 2 artifacts, got %q (%d)", first.Output, first.Outputs)
	}
	if len(first.Input.SourceFiles) != 5 {
		t.Errorf("dist must not count as input, got %d source files", len(first.Input.SourceFiles))
	}

	if err := os.WriteFile(filepath.Join(dist, "main.js"), []byte("console.log(2)\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	second := fingerprintOf()
	if second.Output == first.Output {
		t.Error("output fingerprint did not follow the artifact content")
	}
	if second.Input.InputHash != first.Input.InputHash {
		t.Error("an artifact edit changed the input fingerprint")
	}
}

func TestCacheDigests(t *testing.T) {
	root := writeProject(t)
	t.Setenv("NEXXO_DIGEST_CACHE", "true")

	if _, err := run(t, "fingerprint", "--root", root); err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	out, err := run(t, "cache", "stats", "--root", root)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(out, "digests: 5") {
		t.Errorf("expected 5 stored digests, got:\n%s", out)
	}

	if _, err := run(t, "cache", "clear", "--root", root); err != nil {
		t.Fatalf("cache clear failed: %v", err)
	}
	out, err = run(t, "cache", "stats", "--root", root)
	if err != nil {
		t.Fatalf("cache stats failed: %v", err)
	}
	if !strings.Contains(out, "digests: 0") {
		t.Errorf("expected an empty digest cache, got:\n%s", out)
	}
}

func TestRulesCommands(t *testing.T) {
	root := writeProject(t)

	out, err := run(t, "rules", "list", "--root", root)
	if err != nil {
		t.Fatalf("rules list failed: %v", err)
	}
	for _, want := range []string{"config-files:", "  **/package.json", "entry-points:", "safe:"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	out, err = run(t, "rules", "match", "--root", root, "src/app.css", "src/main.ts", "./src/App.tsx", filepath.Join(root, "package.json"))
	if err != nil {
		t.Fatalf("rules match failed: %v", err)
	}
	for _, want := range []string{
		"src/app.css: safe\n",
		"src/main.ts: entry-points\n",
		"src/App.tsx: (none)\n",
		"package.json: config-files\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	if _, err := run(t, "rules", "init", "--root", root); err != nil {
		t.Fatalf("rules init failed: %v", err)
	}
	saved, err := pathmatch.LoadRules(filepath.Join(root, defaultRulesFile))
	if err != nil {
		t.Fatalf("loading written rules: %v", err)
	}
	if len(saved.Rules()) != 3 || !saved.Match(hmr.RuleSafe, "src/app.css") {
		t.Errorf("unexpected written rules: %+v", saved.Rules())
	}

	if _, err := run(t, "rules", "init", "--root", root); err == nil {
		t.Error("expected init to refuse an existing file")
	}
	if _, err := run(t, "rules", "init", "--root", root, "--force"); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}

func TestFingerprintCommand_StoreDisabled(t *testing.T) {
	root := writeProject(t)
	t.Setenv("NEXXO_CACHE_DRIVER", "none")

	if _, err := run(t, "fingerprint", "--root", root, "--store"); err == nil {
		t.Error("expected an error with the none driver")
	}
}

func TestGraphCommand(t *testing.T) {
	root := writeProject(t)

	out, err := run(t, "graph", "--root", root, "--json")
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	var report graphReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(report.Nodes) != 4 {
		t.Errorf("expected 4 nodes, got %d", len(report.Nodes))
	}
	if len(report.Unresolved) != 1 || report.Unresolved[0].Specifier != "react" {
		t.Errorf("expected react unresolved, got %+v", report.Unresolved)
	}

	out, err = run(t, "graph", "--root", root)
	if err != nil {
		t.Fatalf("graph failed: %v", err)
	}
	if !strings.Contains(out, "src/App.tsx [source-file]") || !strings.Contains(out, "4 nodes") {
		t.Errorf("unexpected text output:\n%s", out)
	}
}

func TestValidateCommand(t *testing.T) {
	root := writeProject(t)

	out, err := run(t, "validate", "--root", root)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(out, "cycle: ") || !strings.Contains(out, "1 cycles") {
		t.Errorf("expected one cycle, got:\n%s", out)
	}

	if _, err := run(t, "validate", "--root", root, "--strict"); err != errCycles {
		t.Errorf("expected errCycles with --strict, got %v", err)
	}
}

func TestClassifyCommand(t *testing.T) {
	root := writeProject(t)

	tests := []struct {
		name  string
		args  []string
		level hmr.Level
	}{
		{"stylesheet", []string{"src/app.css"}, hmr.LevelSafe},
		{"config", []string{"vite.config.ts"}, hmr.LevelFullReload},
		{"cycle", []string{"src/components/Button.tsx"}, hmr.LevelFullReload},
		{"importer", []string{"src/App.tsx"}, hmr.LevelPartial},
		{"batch", []string{"src/app.css", "src/App.tsx"}, hmr.LevelPartial},
		{"no graph", []string{"src/components/Button.tsx", "--no-graph"}, hmr.LevelPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"classify", "--root", root}, tt.args...)...)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			var d hmr.Decision
			if err := json.Unmarshal([]byte(out), &d); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if d.Level != tt.level {
				t.Errorf("expected %s, got %s (%s)", tt.level, d.Level, d.Reason)
			}
		})
	}

	if _, err := run(t, "classify", "--root", root, "--kind", "moved", "src/app.css"); err == nil {
		t.Error("expected an error for an invalid kind")
	}
}

func TestProjectClassifierOverrides(t *testing.T) {
	root := writeProject(t)
	rules := "rules:\n  - name: safe\n    paths: [\"**/*.md\"]\n"
	if err := os.WriteFile(filepath.Join(root, "hmr-rules.yaml"), []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := "entries: [src/main.ts]\nhmr:\n  rulesFile: hmr-rules.yaml\n  entryPatterns: [\"src/App.tsx\"]\n"
	if err := os.WriteFile(filepath.Join(root, "nexxo.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	for path, want := range map[string]hmr.Level{
		"docs/readme.md": hmr.LevelSafe,
		"src/App.tsx":    hmr.LevelFullReload,
		"src/app.css":    hmr.LevelPartial,
	} {
		out, err := run(t, "classify", "--root", root, "--no-graph", path)
		if err != nil {
			t.Fatalf("classify %s failed: %v", path, err)
		}
		var d hmr.Decision
		if err := json.Unmarshal([]byte(out), &d); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if d.Level != want {
			t.Errorf("%s: expected %s, got %s", path, want, d.Level)
		}
	}
}
