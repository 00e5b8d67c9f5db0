package hmr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/pathmatch"
)

// buildIndex writes files under a temp root, adds entry, and returns the
// root and the graph's index.
func buildIndex(t *testing.T, files map[string]string, entry string) (string, *graph.Index) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	g := graph.New(graph.Options{Root: root})
	_, ok := g.AddEntry(context.Background(), entry)
	require.True(t, ok)
	return root, g.Index()
}

func TestClassify_Tiers(t *testing.T) {
	c := New(Options{})

	tests := []struct {
		path     string
		want     Level
		affected []string
	}{
		{"app.config.ts", LevelFullReload, []string{AllModules}},
		{"packages/ui/tailwind.config.js", LevelFullReload, []string{AllModules}},
		{".env.local", LevelFullReload, []string{AllModules}},
		{"src/main.tsx", LevelFullReload, []string{AllModules}},
		{"index.html", LevelFullReload, []string{AllModules}},
		{"src/styles/app.css", LevelSafe, []string{"src/styles/app.css"}},
		{"src/assets/logo.svg", LevelSafe, []string{"src/assets/logo.svg"}},
		{"src/components/Button.tsx", LevelPartial, []string{"src/components/Button.tsx"}},
		{"README.md", LevelPartial, []string{"README.md"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			d := c.Classify(FileChange{Path: tt.path, Kind: Updated}, nil)
			assert.Equal(t, tt.want, d.Level)
			assert.Equal(t, tt.affected, d.AffectedModules)
			assert.NotEmpty(t, d.Reason)
		})
	}
}

func TestClassify_Cycle(t *testing.T) {
	root, index := buildIndex(t, map[string]string{
		"src/App.tsx":               "import { Button } from './components/Button';\n",
		"src/components/Button.tsx": "import { Icon } from './Icon';\nexport const Button = () => Icon;\n",
		"src/components/Icon.tsx":   "import { Button } from './Button';\nexport const Icon = () => Button;\n",
	}, "src/App.tsx")
	c := New(Options{Root: root})

	d := c.Classify(FileChange{Path: "src/components/Button.tsx", Kind: Updated}, index)
	assert.Equal(t, LevelFullReload, d.Level)
	assert.Contains(t, d.Reason, "circular dependency")
	assert.Contains(t, d.Reason, "src/components/Icon.tsx")
	require.Len(t, d.SuggestedOptimizations, 1)
	assert.Contains(t, d.SuggestedOptimizations[0], "break the cycle")
	assert.Equal(t, []string{AllModules}, d.AffectedModules)

	app := c.Classify(FileChange{Path: filepath.Join(root, "src", "App.tsx"), Kind: Updated}, index)
	assert.Equal(t, LevelPartial, app.Level, "App imports the cycle but is not part of it")
	assert.Equal(t, []string{"src/App.tsx"}, app.AffectedModules)
}

func TestClassify_PartialWithImporters(t *testing.T) {
	root, index := buildIndex(t, map[string]string{
		"src/App.tsx":  "import './util';\nimport './view';\n",
		"src/view.tsx": "import './util';\n",
		"src/util.ts":  "import './const';\nexport const u = 1;\n",
		"src/const.ts": "export const C = 1;\n",
	}, "src/App.tsx")
	c := New(Options{Root: root})

	d := c.Classify(FileChange{Path: "src/util.ts", Kind: Updated}, index)
	assert.Equal(t, LevelPartial, d.Level)
	assert.Equal(t, []string{"src/util.ts", "src/App.tsx", "src/view.tsx"}, d.AffectedModules)
	assert.Empty(t, d.SuggestedOptimizations)

	require.Len(t, d.GraphChanges, 1)
	assert.Equal(t, graph.ChangeModified, d.GraphChanges[0].Kind)
	assert.Equal(t, []string{"src/const.ts"}, d.GraphChanges[0].Dependencies)

	missing := c.Classify(FileChange{Path: "src/new.ts", Kind: Created}, index)
	assert.Equal(t, LevelPartial, missing.Level)
	assert.Equal(t, graph.ChangeAdded, missing.GraphChanges[0].Kind)

	gone := c.Classify(FileChange{Path: "src/view.tsx", Kind: Deleted}, index)
	assert.Equal(t, graph.ChangeRemoved, gone.GraphChanges[0].Kind)
	assert.Equal(t, []string{"src/view.tsx", "src/App.tsx"}, gone.AffectedModules)
}

func TestClassify_SplitThreshold(t *testing.T) {
	build := func(t *testing.T, importers int) (string, *graph.Index) {
		files := map[string]string{"src/shared.ts": "export const s = 1;\n"}
		var entry strings.Builder
		for i := 0; i < importers; i++ {
			name := fmt.Sprintf("src/page%02d.ts", i)
			files[name] = "import './shared';\n"
			fmt.Fprintf(&entry, "import './page%02d';\n", i)
		}
		files["src/App.ts"] = entry.String()
		return buildIndex(t, files, "src/App.ts")
	}

	t.Run("over threshold", func(t *testing.T) {
		root, index := build(t, 11)
		d := New(Options{Root: root}).Classify(FileChange{Path: "src/shared.ts", Kind: Updated}, index)
		assert.Equal(t, LevelPartial, d.Level)
		assert.Len(t, d.AffectedModules, 12)
		require.Len(t, d.SuggestedOptimizations, 1)
		assert.Contains(t, d.SuggestedOptimizations[0], "code-splitting")
	})

	t.Run("at threshold", func(t *testing.T) {
		root, index := build(t, 9)
		d := New(Options{Root: root}).Classify(FileChange{Path: "src/shared.ts", Kind: Updated}, index)
		assert.Equal(t, LevelPartial, d.Level)
		assert.Len(t, d.AffectedModules, 10)
		assert.Empty(t, d.SuggestedOptimizations)
	})

	t.Run("custom threshold", func(t *testing.T) {
		root, index := build(t, 3)
		d := New(Options{Root: root, SplitThreshold: 2}).Classify(FileChange{Path: "src/shared.ts", Kind: Updated}, index)
		assert.Len(t, d.SuggestedOptimizations, 1)
	})
}

func TestClassify_CustomRules(t *testing.T) {
	c := New(Options{Rules: pathmatch.NewMatcher([]pathmatch.Rule{
		{Name: RuleEntryPoints, Paths: []string{"app/boot.ts"}},
	})})

	assert.Equal(t, LevelFullReload, c.Classify(FileChange{Path: "app/boot.ts", Kind: Updated}, nil).Level)
	assert.Equal(t, LevelPartial, c.Classify(FileChange{Path: "src/main.ts", Kind: Updated}, nil).Level)
	assert.Equal(t, LevelSafe, c.Classify(FileChange{Path: "a.css", Kind: Updated}, nil).Level, "other rule sets keep their defaults")
}

func TestClassifyBatch(t *testing.T) {
	c := New(Options{})
	safe1 := FileChange{Path: "src/a.css", Kind: Updated}
	safe2 := FileChange{Path: "src/logo.png", Kind: Updated}
	partial := FileChange{Path: "src/util.ts", Kind: Updated}
	full := FileChange{Path: "vite.config.ts", Kind: Updated}

	t.Run("safe", func(t *testing.T) {
		d := c.ClassifyBatch([]FileChange{safe1, safe2}, nil)
		assert.Equal(t, LevelSafe, d.Level)
		assert.Equal(t, []string{"src/a.css", "src/logo.png"}, d.AffectedModules)
	})

	t.Run("full reload wins", func(t *testing.T) {
		d := c.ClassifyBatch([]FileChange{safe1, full, partial}, nil)
		assert.Equal(t, LevelFullReload, d.Level)
		assert.Equal(t, []string{AllModules}, d.AffectedModules)
		assert.Contains(t, d.Reason, "vite.config.ts")
		assert.Len(t, d.GraphChanges, 3)
	})

	t.Run("partial", func(t *testing.T) {
		d := c.ClassifyBatch([]FileChange{safe1, partial}, nil)
		assert.Equal(t, LevelPartial, d.Level)
		assert.Equal(t, []string{"src/a.css", "src/util.ts"}, d.AffectedModules)
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, LevelSafe, c.ClassifyBatch(nil, nil).Level)
	})
}
