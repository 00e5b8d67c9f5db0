package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Avinash-1994/Nexxo-sub001/cas"
	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/internal/digestcache"
	"github.com/Avinash-1994/Nexxo-sub001/store"
)

var project = map[string]string{
	"index.html":              `<script type="module" src="/src/main.ts"></script>`,
	"src/main.ts":             "import { App } from './app';\nimport './style.css';\nApp();\n",
	"src/app.ts":              "import { leaf } from './leaf';\nexport const App = () => leaf;\n",
	"src/leaf.ts":             "export const leaf = 1;\n",
	"src/style.css":           "body { background: url(./bg.png); }\n",
	"src/bg.png":              "\x89PNG\r\n",
	"README.md":               "# not a source file\n",
	"node_modules/dep/i.js":   "module.exports = 1;\n",
	"dist/main.js":            "built();\n",
	"coverage/lcov.json":      "{}\n",
	".git/HEAD":               "ref: refs/heads/main\n",
	"src/nested/dist/keep.ts": "export {}\n",
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func buildContext(root string) Context {
	return Context{
		Root:   root,
		Config: BuildConfig{OutDir: filepath.Join(root, "dist"), Entries: []string{"index.html"}, Mode: "production"},
		Engine: Engine{Name: "nexxo", Version: "1.0.0"},
	}
}

// build runs the whole pipeline once: input fingerprint, then a fresh graph.
func build(t *testing.T, root string) Context {
	t.Helper()
	ctx := context.Background()
	bctx := buildContext(root)

	in, err := BuildInputFingerprint(ctx, bctx)
	require.NoError(t, err)
	bctx.Input = in

	g := graph.New(graph.Options{Root: root})
	_, ok := g.AddEntry(ctx, "index.html")
	require.True(t, ok)
	return AttachGraph(bctx, g)
}

func paths(files []SourceFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestBuildInputFingerprint_Scan(t *testing.T) {
	root := writeProject(t, project)
	in, err := BuildInputFingerprint(context.Background(), buildContext(root))
	require.NoError(t, err)

	// outDir excludes every directory named like it, at any depth
	assert.Equal(t, []string{
		"index.html",
		"src/app.ts",
		"src/bg.png",
		"src/leaf.ts",
		"src/main.ts",
		"src/style.css",
	}, paths(in.SourceFiles))
	assert.NotEmpty(t, in.ConfigHash)
	assert.NotEmpty(t, in.EngineFingerprint)
	assert.Len(t, in.InputHash, 64)
}

func TestBuildInputFingerprint_MatchesNodeHashes(t *testing.T) {
	root := writeProject(t, project)
	bctx := build(t, root)

	g := graph.New(graph.Options{Root: root})
	g.AddEntry(context.Background(), "index.html")
	for _, f := range bctx.Input.SourceFiles {
		if n, ok := g.Lookup(f.Path); ok {
			assert.Equal(t, n.ContentHash, f.Hash, f.Path)
		}
	}
}

func TestPipeline_Reproducible(t *testing.T) {
	root := writeProject(t, project)

	first := build(t, root)
	for i := 0; i < 4; i++ {
		again := build(t, root)
		assert.Equal(t, first.Input.InputHash, again.Input.InputHash, "run %d", i+2)
		assert.Equal(t, first.Graph, again.Graph, "run %d", i+2)
	}
}

func TestPipeline_LeafEdit(t *testing.T) {
	root := writeProject(t, project)
	before := build(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "leaf.ts"), []byte("export const leaf = 2;\n"), 0o644))
	after := build(t, root)

	assert.NotEqual(t, before.Input.InputHash, after.Input.InputHash)
	assert.NotEqual(t, before.Graph, after.Graph)

	changes := Diff(before.Input, after.Input)
	assert.Equal(t, []string{"src/leaf.ts"}, changes.Modified)
	assert.Empty(t, changes.Added)
	assert.Empty(t, changes.Removed)
	assert.False(t, changes.ConfigChanged)
}

func TestPipeline_LineEndingsOnly(t *testing.T) {
	root := writeProject(t, project)
	before := build(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "leaf.ts"), []byte("export const leaf = 1;\r\n"), 0o644))
	after := build(t, root)

	assert.Equal(t, before.Input.InputHash, after.Input.InputHash)
	assert.Equal(t, before.Graph, after.Graph)
}

func TestPipeline_RootIndependent(t *testing.T) {
	a := build(t, writeProject(t, project))
	b := build(t, writeProject(t, project))

	assert.Equal(t, a.Input.ConfigHash, b.Input.ConfigHash, "absolute outDir must not leak into the config hash")
	assert.Equal(t, a.Input.InputHash, b.Input.InputHash)
	assert.Equal(t, a.Graph, b.Graph)
}

func TestConfigFingerprint(t *testing.T) {
	base := BuildConfig{OutDir: "dist", Entries: []string{"./index.html"}, Mode: "production"}

	assert.Equal(t,
		ConfigFingerprint("/a", base),
		ConfigFingerprint("/b", BuildConfig{OutDir: "/b/dist", Entries: []string{"index.html"}, Mode: "production"}),
	)

	withDefine := base
	withDefine.Define = map[string]string{"__DEV__": "false"}
	assert.NotEqual(t, ConfigFingerprint("/a", base), ConfigFingerprint("/a", withDefine))

	nilVsEmpty := base
	nilVsEmpty.Define = map[string]string{}
	assert.Equal(t, ConfigFingerprint("/a", base), ConfigFingerprint("/a", nilVsEmpty))
}

func TestConfigFingerprint_AbsoluteEntries(t *testing.T) {
	cfgAt := func(root string) BuildConfig {
		return BuildConfig{
			OutDir:  filepath.Join(root, "dist"),
			Entries: []string{filepath.Join(root, "src", "main.ts"), filepath.Join(root, "index.html")},
			Mode:    "production",
		}
	}
	a := filepath.Join(t.TempDir(), "home", "a", "proj")
	b := filepath.Join(t.TempDir(), "srv", "b", "proj")

	assert.Equal(t, ConfigFingerprint(a, cfgAt(a)), ConfigFingerprint(b, cfgAt(b)))
	assert.Equal(t,
		ConfigFingerprint(a, cfgAt(a)),
		ConfigFingerprint(a, BuildConfig{OutDir: "dist", Entries: []string{"src/main.ts", "./index.html"}, Mode: "production"}),
	)
}

func TestEngineFingerprint(t *testing.T) {
	a := EngineFingerprint(Engine{Name: "nexxo", Version: "1.0.0"})
	assert.Equal(t, a, EngineFingerprint(Engine{Name: "nexxo", Version: "1.0.0"}))
	assert.NotEqual(t, a, EngineFingerprint(Engine{Name: "nexxo", Version: "1.0.1"}))
}

func TestBuildInputFingerprint_DigestCache(t *testing.T) {
	root := writeProject(t, project)
	cache, err := digestcache.Open(filepath.Join(t.TempDir(), "digests.db"))
	require.NoError(t, err)
	defer cache.Close()

	bctx := buildContext(root)
	bctx.Digests = cache
	bctx.Concurrency = 2

	cold, err := BuildInputFingerprint(context.Background(), bctx)
	require.NoError(t, err)
	warm, err := BuildInputFingerprint(context.Background(), bctx)
	require.NoError(t, err)
	assert.Equal(t, cold.InputHash, warm.InputHash)

	plain, err := BuildInputFingerprint(context.Background(), buildContext(root))
	require.NoError(t, err)
	assert.Equal(t, plain.InputHash, warm.InputHash)

	stats, err := cache.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, len(cold.SourceFiles), stats.TotalEntries)
}

func TestBuildInputFingerprint_ExtensionsAndExclude(t *testing.T) {
	root := writeProject(t, project)
	bctx := buildContext(root)
	bctx.Extensions = []string{".ts"}
	bctx.Exclude = []string{"src/app.ts"}

	in, err := BuildInputFingerprint(context.Background(), bctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/leaf.ts", "src/main.ts"}, paths(in.SourceFiles))
}

func TestBuildInputFingerprint_MissingRoot(t *testing.T) {
	_, err := BuildInputFingerprint(context.Background(), buildContext(filepath.Join(t.TempDir(), "absent")))
	assert.Error(t, err)
}

func TestPlanAndOutputFingerprint(t *testing.T) {
	root := writeProject(t, project)
	bctx := build(t, root)

	_, err := PlanFingerprint(Context{}, nil)
	assert.ErrorIs(t, err, ErrIncomplete)

	g := graph.New(graph.Options{Root: root})
	g.AddEntry(context.Background(), "index.html")
	work := g.WorkList()
	require.NotEmpty(t, work)

	plan, err := PlanFingerprint(bctx, work)
	require.NoError(t, err)

	reversed := make([]graph.WorkItem, len(work))
	for i, w := range work {
		reversed[len(work)-1-i] = w
	}
	again, err := PlanFingerprint(bctx, reversed)
	require.NoError(t, err)
	assert.Equal(t, plan, again, "work order must not matter")

	other := build(t, writeProject(t, project))
	otherG := graph.New(graph.Options{Root: other.Root})
	otherG.AddEntry(context.Background(), "index.html")
	otherPlan, err := PlanFingerprint(other, otherG.WorkList())
	require.NoError(t, err)
	assert.Equal(t, plan, otherPlan, "plan must not depend on the absolute root")

	out := OutputFingerprint(plan, []Artifact{{Path: "./assets/a.js", Hash: "1"}, {Path: "index.html", Hash: "2"}})
	assert.Equal(t, out, OutputFingerprint(plan, []Artifact{{Path: "index.html", Hash: "2"}, {Path: "assets/a.js", Hash: "1"}}))
	assert.NotEqual(t, out, OutputFingerprint(plan, []Artifact{{Path: "index.html", Hash: "3"}, {Path: "assets/a.js", Hash: "1"}}))
}

func TestDiff(t *testing.T) {
	prev := &InputFingerprint{
		ConfigHash: "c1", EngineFingerprint: "e1",
		SourceFiles: []SourceFile{{"a.ts", "1"}, {"b.ts", "2"}, {"c.ts", "3"}},
	}
	next := &InputFingerprint{
		ConfigHash: "c2", EngineFingerprint: "e1",
		SourceFiles: []SourceFile{{"a.ts", "1"}, {"b.ts", "9"}, {"d.ts", "4"}},
	}

	c := Diff(prev, next)
	assert.Equal(t, []string{"d.ts"}, c.Added)
	assert.Equal(t, []string{"c.ts"}, c.Removed)
	assert.Equal(t, []string{"b.ts"}, c.Modified)
	assert.True(t, c.ConfigChanged)
	assert.False(t, c.EngineChanged)
	assert.False(t, c.Empty())

	assert.True(t, Diff(next, next).Empty())
	assert.Equal(t, []string{"a.ts", "b.ts", "d.ts"}, Diff(nil, next).Added)
}

func TestRecordAndLatest(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	_, ok, err := Latest(ctx, st)
	require.NoError(t, err)
	assert.False(t, ok)

	root := writeProject(t, project)
	in, err := BuildInputFingerprint(ctx, buildContext(root))
	require.NoError(t, err)
	require.NoError(t, Record(ctx, st, in))

	got, ok, err := Latest(ctx, st)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in, got)

	leaf := in.SourceFiles[3]
	require.Equal(t, "src/leaf.ts", leaf.Path)
	v, ok, err := st.Get(ctx, store.InputKey(leaf.Path, leaf.Hash))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, leaf.Hash, string(v))

	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "leaf.ts"), []byte("export const leaf = 2;\n"), 0o644))
	edited, err := BuildInputFingerprint(ctx, buildContext(root))
	require.NoError(t, err)

	unchanged, err := Unchanged(ctx, st, edited)
	require.NoError(t, err)
	assert.NotContains(t, unchanged, "src/leaf.ts")
	assert.Len(t, unchanged, len(edited.SourceFiles)-1)
}

func TestLatest_CorruptPointer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Set(ctx, store.FingerprintKey("latest", "input"), []byte("not-a-digest")))

	_, ok, err := Latest(ctx, st)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestScanArtifacts(t *testing.T) {
	root := writeProject(t, project)
	dist := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(filepath.Join(dist, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dist, "assets", "a.js"), []byte("a();\r\n"), 0o644))

	arts, err := ScanArtifacts(dist)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	byPath := map[string]string{}
	for _, a := range arts {
		byPath[a.Path] = a.Hash
	}
	assert.Equal(t, cas.HashBytes([]byte("a();\r\n")), byPath["assets/a.js"], "artifacts are hashed byte for byte")
	assert.Contains(t, byPath, "main.js")

	none, err := ScanArtifacts(filepath.Join(root, "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)

	plan := "p"
	assert.Equal(t, OutputFingerprint(plan, arts), OutputFingerprint(plan, []Artifact{arts[1], arts[0]}))
}
