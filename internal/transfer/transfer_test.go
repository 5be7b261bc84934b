package transfer

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stategraph/internal/fault"
	"github.com/roach88/stategraph/internal/schema"
	"github.com/roach88/stategraph/internal/store"
	"github.com/roach88/stategraph/internal/testutil"
	"github.com/roach88/stategraph/internal/value"
)

func openStore(t *testing.T, name string) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), name),
		store.WithClock(testutil.NewStepClock(testutil.Epoch, time.Second).Now),
		store.WithIDGenerator(testutil.NewSequentialIDs("id").Next),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// seed writes a project, a task and a part_of edge between them.
func seed(t *testing.T, st *store.Store) {
	t.Helper()
	ctx := context.Background()
	project, err := st.CreateNode(ctx, schema.System, schema.NodeProject,
		value.Object{"name": value.String("stategraph")}, value.Object{"owner": value.String("ops")})
	require.NoError(t, err)
	task, err := st.CreateNode(ctx, schema.System, schema.NodeTask, value.String("write tests"), nil)
	require.NoError(t, err)
	w := 0.5
	_, err = st.CreateEdge(ctx, schema.System, task.ID, project.ID, schema.EdgePartOf, &w)
	require.NoError(t, err)
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestExport_JSONGolden(t *testing.T) {
	st := openStore(t, "src.db")
	seed(t, st)

	doc, err := Export(context.Background(), st, ExportOptions{Edges: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, FormatJSON))
	golden(t).Assert(t, "export_json", buf.Bytes())
}

func TestExport_NDJSONGolden(t *testing.T) {
	st := openStore(t, "src.db")
	seed(t, st)

	doc, err := Export(context.Background(), st, ExportOptions{Edges: true})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, doc, FormatNDJSON))
	golden(t).Assert(t, "export_ndjson", buf.Bytes())
}

func TestExport_EventsAndKindFilter(t *testing.T) {
	st := openStore(t, "src.db")
	seed(t, st)

	doc, err := Export(context.Background(), st, ExportOptions{Kind: schema.NodeTask, Events: true})
	require.NoError(t, err)
	require.Len(t, doc.Nodes, 1)
	assert.Equal(t, "task", doc.Nodes[0].Kind)
	assert.Empty(t, doc.Edges)
	require.Len(t, doc.Events, 3)
	assert.Equal(t, "edge:id-0003", doc.Events[2].Target)
	assert.Equal(t, "link", doc.Events[2].Operation)
	assert.Nil(t, doc.Events[0].Before)
	assert.NotNil(t, doc.Events[0].After)
}

func TestRoundTrip_AllFormats(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatYAML, FormatNDJSON} {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			src := openStore(t, "src.db")
			seed(t, src)
			doc, err := Export(ctx, src, ExportOptions{Edges: true})
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, doc, format))
			back, err := Decode(&buf, format)
			require.NoError(t, err)

			dst := openStore(t, "dst.db")
			res, err := Import(ctx, dst, back, ImportOptions{Agent: schema.System})
			require.NoError(t, err)
			assert.Equal(t, 2, res.Nodes)

			for _, id := range []string{"id-0001", "id-0002"} {
				want, _, err := src.GetNode(ctx, id)
				require.NoError(t, err)
				got, ok, err := dst.GetNode(ctx, id)
				require.NoError(t, err)
				require.True(t, ok, id)
				assert.Equal(t, want.Kind, got.Kind)
				assert.True(t, value.Equal(want.Content, got.Content), id)
				assert.True(t, value.Equal(want.Metadata, got.Metadata), id)
				assert.True(t, want.CreatedAt.Equal(got.CreatedAt), id)
			}

			if format == FormatNDJSON {
				assert.Zero(t, res.Edges, "ndjson carries nodes only")
				return
			}
			assert.Equal(t, 1, res.Edges)
			e, ok, err := dst.GetEdge(ctx, "id-0003")
			require.NoError(t, err)
			require.True(t, ok)
			require.NotNil(t, e.Weight)
			assert.Equal(t, 0.5, *e.Weight)
			assert.Equal(t, schema.EdgePartOf, e.Kind)
		})
	}
}

func TestImport_MalformedDocumentWritesNothing(t *testing.T) {
	ctx := context.Background()
	dst := openStore(t, "dst.db")
	doc := Document{
		Version: DocumentVersion,
		Nodes: []NodeRecord{
			{ID: "a", Kind: "task", Content: "fine"},
			{ID: "b", Kind: "spaceship", Content: "not fine"},
		},
	}

	_, err := Import(ctx, dst, doc, ImportOptions{Agent: schema.System})
	require.Error(t, err)
	assert.True(t, fault.IsInvalidInput(err))
	assert.ErrorContains(t, err, "nodes[1]")

	stats, err := dst.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Nodes)
	assert.Zero(t, stats.Events)
}

func TestImport_ExistingIDs(t *testing.T) {
	ctx := context.Background()
	st := openStore(t, "db.db")
	seed(t, st)
	doc, err := Export(ctx, st, ExportOptions{Edges: true})
	require.NoError(t, err)

	_, err = Import(ctx, st, doc, ImportOptions{Agent: schema.System})
	assert.True(t, fault.IsInvalidInput(err), "duplicate ids: %v", err)
	assert.ErrorContains(t, err, "already exists")

	res, err := Import(ctx, st, doc, ImportOptions{Agent: schema.System, SkipExisting: true})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Skipped: 3}, res)

	_, err = Import(ctx, st, doc, ImportOptions{Agent: "nobody"})
	assert.True(t, fault.IsInvalidInput(err))
}

func TestDecode_KeepsLargeIntegers(t *testing.T) {
	src := `{"version":1,"nodes":[{"id":"n","kind":"context","content":{"big":9007199254740993},"created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-01T00:00:00Z"}]}`
	doc, err := Decode(strings.NewReader(src), FormatJSON)
	require.NoError(t, err)

	n, err := doc.Nodes[0].node()
	require.NoError(t, err)
	assert.Equal(t, value.Object{"big": value.Int(9007199254740993)}, n.Content)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"version":2,"nodes":[]}`), FormatJSON)
	assert.ErrorContains(t, err, "unsupported document version 2")

	_, err = Decode(strings.NewReader("{\"id\":\"a\"}\nnot json\n"), FormatNDJSON)
	assert.ErrorContains(t, err, "line 2")

	_, err = Decode(strings.NewReader(""), "xml")
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	_, err = ParseFormat("csv")
	assert.Error(t, err)
}
