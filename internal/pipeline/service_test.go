package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/recipe"
	"github.com/sells-group/docforge/internal/store"
	"github.com/sells-group/docforge/pkg/render"
	"github.com/sells-group/docforge/pkg/sheets"
)

// scriptedLLM answers by prompt kind and records every prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	budget  string
	match   string
	extract string
	err     map[string]error
	prompts []string
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)

	kind := "extract"
	switch {
	case strings.Contains(prompt, "Return ONLY the number or null"):
		kind = "budget"
	case strings.Contains(prompt, "project matching assistant"):
		kind = "match"
	}
	if err := s.err[kind]; err != nil {
		return "", err
	}
	switch kind {
	case "budget":
		return s.budget, nil
	case "match":
		return s.match, nil
	default:
		return s.extract, nil
	}
}

func (s *scriptedLLM) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[len(s.prompts)-1]
}

type fakeRender struct {
	resp *render.Response
	err  error
	got  *render.Request
}

func (f *fakeRender) Render(_ context.Context, req *render.Request) (*render.Response, error) {
	f.got = req
	return f.resp, f.err
}

type fakeSheet struct {
	table *sheets.Table
	err   error
}

func (f *fakeSheet) Fetch(context.Context) (*sheets.Table, error) {
	return f.table, f.err
}

const rabRecipe = `{
  "google_doc_id": "doc-rab",
  "placeholders": {
    "Nama_Proyek": "nama proyek",
    "Harga": null,
    "Jumlah": null,
    "Total_CALCULATED": "Harga * Jumlah",
    "Pembelian": "daftar pembelian"
  },
  "examples": {"Nama_Proyek": "Pengadaan Server"}
}`

const kakRecipe = `{
  "google_doc_id": "  ",
  "placeholders": {"Nama_Proyek": "nama", "Latar_Belakang": "latar belakang"},
  "examples": {}
}`

type fixture struct {
	svc    *Service
	llm    *scriptedLLM
	render *fakeRender
	store  *store.MemoryStore
}

func newFixture(t *testing.T, sheet sheets.Source) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rab.json"), []byte(rabRecipe), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kak.json"), []byte(kakRecipe), 0o644))

	catalog := &recipe.Catalog{
		Root:      dir,
		Threshold: recipe.DefaultThreshold,
		Sets: []recipe.TemplateSet{
			{Name: "lisensi_small", Keyword: "lisensi", Templates: []string{"rab.docx"}},
			{Name: "pengadaan_small", Default: true, Templates: []string{"rab.docx", "kak.docx"}},
			{Name: "pengadaan_large", Large: true, Default: true, Templates: []string{"rab.docx"}},
		},
	}

	f := &fixture{
		llm: &scriptedLLM{
			budget:  "150000000",
			match:   `{"matches": []}`,
			extract: `{"Nama_Proyek": "Server Rack", "Harga": 1500000, "Jumlah": 2}`,
		},
		render: &fakeRender{resp: &render.Response{Status: render.StatusCompleted, Results: []render.Result{
			{Status: render.StatusSuccess, FileName: "RAB Server Rack", DocURL: "https://docs/rab", TemplateID: "doc-rab"},
		}}},
		store: store.NewMemory(),
	}
	f.svc = New(Deps{
		LLM:     f.llm,
		Render:  f.render,
		Store:   f.store,
		Sheet:   sheet,
		Catalog: catalog,
	})
	return f
}

func projectSheet() *fakeSheet {
	return &fakeSheet{table: sheets.FromRows([][]string{
		{"Title", "Anggaran", "PIC"},
		{"Server Rack Gedung B", "150000000", "Budi"},
		{"Lisensi ERP", "450000000", "Sari"},
	})}
}

func TestStart_ExtractsWithoutSheet(t *testing.T) {
	f := newFixture(t, nil)

	sess, err := f.svc.Start(context.Background(), StartRequest{
		Description: "Pengadaan server rack 2 unit",
		Sources:     []model.Source{{Label: "TOR.pdf", Text: "spesifikasi 42U"}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageVerification, sess.Stage)
	require.NotNil(t, sess.Budget)
	assert.Equal(t, 150_000_000.0, *sess.Budget)
	assert.Equal(t, "pengadaan_small", sess.TemplateSet)
	assert.Len(t, sess.Recipes, 2)
	assert.Equal(t, "Server Rack", sess.Extracted["Nama_Proyek"])
	assert.Empty(t, sess.ExtractionError)

	prompt := f.llm.last()
	assert.Contains(t, prompt, "Pengadaan server rack 2 unit")
	assert.Contains(t, prompt, "--- CONTEXT FROM DOCUMENT 'TOR.pdf' ---")
	assert.Contains(t, prompt, `"Latar_Belakang"`)
	assert.NotContains(t, prompt, "Total_CALCULATED")

	stored, err := f.store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageVerification, stored.Stage)
}

func TestStart_EmptyDescription(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Start(context.Background(), StartRequest{Description: "   "})
	assert.ErrorIs(t, err, ErrEmptyRequest)
}

func TestStart_NoBudget(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.budget = "null"

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Pengadaan kursi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, recipe.ErrNoBudget)
	assert.True(t, IsUserError(err))
	assert.Equal(t, model.StageInput, sess.Stage)
}

func TestStart_BudgetFailureIsRecorded(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.err = map[string]error{"budget": errors.New("quota")}

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, recipe.ErrNoBudget)
	require.NotEmpty(t, sess.Errors)
	assert.Contains(t, sess.Errors[0], "budget analysis failed")
}

func TestStart_RecordsUploadErrors(t *testing.T) {
	f := newFixture(t, nil)
	budget := 50_000_000.0

	sess, err := f.svc.Start(context.Background(), StartRequest{
		Description:  "Pengadaan server",
		Budget:       &budget,
		UploadErrors: []error{errors.New("scan.pdf: upload: no text extracted")},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Errors)
	assert.Equal(t, "upload skipped: scan.pdf: upload: no text extracted", sess.Errors[0])

	stored, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Errors, stored.Errors)
}

func TestStart_ExplicitBudgetAndSet(t *testing.T) {
	f := newFixture(t, nil)
	budget := 500_000_000.0

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Pengadaan", Budget: &budget})
	require.NoError(t, err)
	assert.Equal(t, "pengadaan_large", sess.TemplateSet)
	for _, p := range f.llm.prompts {
		assert.NotContains(t, p, "Return ONLY the number or null")
	}

	sess, err = f.svc.Start(context.Background(), StartRequest{Description: "x", TemplateSet: "lisensi_small"})
	require.NoError(t, err)
	assert.Equal(t, "lisensi_small", sess.TemplateSet)

	_, err = f.svc.Start(context.Background(), StartRequest{Description: "x", TemplateSet: "nope"})
	assert.ErrorIs(t, err, recipe.ErrNoTemplateSet)
}

func TestStart_KeywordSelection(t *testing.T) {
	f := newFixture(t, nil)
	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Perpanjangan LISENSI antivirus"})
	require.NoError(t, err)
	assert.Equal(t, "lisensi_small", sess.TemplateSet)
	assert.Len(t, sess.Recipes, 1)
}

func TestStart_ExtractionDegrades(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.extract = "Sorry, I cannot help with that."

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	assert.Equal(t, model.StageVerification, sess.Stage)
	assert.NotEmpty(t, sess.ExtractionError)
	assert.Empty(t, sess.Extracted)
	assert.NotNil(t, sess.Extracted)
}

func TestStart_ExtractionCallFails(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.err = map[string]error{"extract": errors.New("timeout")}

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	assert.Contains(t, sess.ExtractionError, "timeout")
	assert.Empty(t, sess.Extracted)
}

func TestStart_SheetMatchesAwaitChoice(t *testing.T) {
	f := newFixture(t, projectSheet())
	f.llm.match = `{"matches": ["Server Rack Gedung B", "Invented Title"]}`

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "server rack gedung B"})
	require.NoError(t, err)
	assert.Equal(t, model.StageDisambiguation, sess.Stage)
	assert.Equal(t, []string{"Server Rack Gedung B"}, sess.Matches)
	assert.Empty(t, sess.Recipes)
}

func TestStart_SheetFailureSkipsMatching(t *testing.T) {
	f := newFixture(t, &fakeSheet{err: errors.New("403")})

	sess, err := f.svc.Start(context.Background(), StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	assert.Equal(t, model.StageVerification, sess.Stage)
	require.NotEmpty(t, sess.Errors)
	assert.Contains(t, sess.Errors[0], "spreadsheet matching skipped")
}

func TestConfirm_AugmentsDescription(t *testing.T) {
	f := newFixture(t, projectSheet())
	f.llm.match = `{"matches": ["Server Rack Gedung B"]}`
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "server rack"})
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, sess.ID, "Lisensi ERP")
	assert.ErrorIs(t, err, ErrUnknownTitle)

	sess, err = f.svc.Confirm(ctx, sess.ID, "Server Rack Gedung B")
	require.NoError(t, err)
	assert.Equal(t, model.StageVerification, sess.Stage)
	assert.Contains(t, sess.Description, "--- Additional data from spreadsheet ---")
	assert.Contains(t, sess.Description, "Anggaran: 150000000")
	assert.Contains(t, sess.Description, "PIC: Budi")
	assert.NotContains(t, sess.Description, "Title: ")
	assert.Contains(t, f.llm.last(), "PIC: Budi")

	_, err = f.svc.Confirm(ctx, sess.ID, "")
	assert.ErrorIs(t, err, ErrWrongStage)
}

func TestConfirm_NoneOfTheAbove(t *testing.T) {
	f := newFixture(t, projectSheet())
	f.llm.match = `{"matches": ["Lisensi ERP"]}`
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)

	sess, err = f.svc.Confirm(ctx, sess.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Pengadaan server", sess.Description)
	assert.Equal(t, model.StageVerification, sess.Stage)
}

func TestVerify_EditsWinAndCalculates(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)

	sess, err = f.svc.Verify(ctx, sess.ID, model.Values{
		"Jumlah":    "3",
		"Pembelian": "[{'NO': 1, 'OBJEK': 'Rack', 'JUMLAH': 3, 'DETAIL': '42U'}]",
	})
	require.NoError(t, err)

	assert.Equal(t, model.StageReview, sess.Stage)
	assert.Equal(t, "3", sess.Values["Jumlah"])
	assert.Equal(t, 4_500_000.0, sess.Values["Total"])
	require.Len(t, sess.Calculations, 1)
	assert.Empty(t, sess.Calculations[0].Error)

	list, ok := sess.Values["Pembelian"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, "Rack", list[0].(map[string]any)["OBJEK"])
}

func TestVerify_MissingVariables(t *testing.T) {
	f := newFixture(t, nil)
	f.llm.extract = `{"Nama_Proyek": "Server"}`
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)

	sess, err = f.svc.Verify(ctx, sess.ID, model.Values{"Harga": "Rp 1.000.000"})
	require.NoError(t, err)
	total, ok := sess.Values["Total"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(total, "ERROR_MISSING_VARS"))
	assert.Contains(t, total, "'Jumlah'")
}

func TestVerify_RevisableFromReview(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, sess.ID, nil)
	require.NoError(t, err)

	sess, err = f.svc.Verify(ctx, sess.ID, model.Values{"Jumlah": 10})
	require.NoError(t, err)
	assert.Equal(t, 15_000_000.0, sess.Values["Total"])
}

func TestSubmit(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrWrongStage)

	_, err = f.svc.Verify(ctx, sess.ID, nil)
	require.NoError(t, err)

	sess, err = f.svc.Submit(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageSubmitted, sess.Stage)

	require.NotNil(t, f.render.got)
	require.Len(t, f.render.got.Documents, 1)
	doc := f.render.got.Documents[0]
	assert.Equal(t, "doc-rab", doc.GoogleDocID)
	assert.Equal(t, "3.000.000,00", doc.DataToFill["Total"])
	// Whole numbers survive the store round trip without a decimal part.
	assert.Equal(t, "1.500.000", doc.DataToFill["Harga"])
	assert.Equal(t, "2", doc.DataToFill["Jumlah"])
	assert.Equal(t, "Server Rack", doc.DataToFill["Nama_Proyek"])
	assert.NotContains(t, doc.DataToFill, "Total_CALCULATED")

	require.Len(t, sess.Results, 2)
	assert.Equal(t, model.RenderSkipped, sess.Results[0].Status)
	assert.Equal(t, model.RenderSuccess, sess.Results[1].Status)
	assert.Equal(t, "https://docs/rab", sess.Results[1].DocURL)

	recorded, err := f.store.ListRenders(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, recorded, 2)
}

func TestSubmit_RenderFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.render.err = errors.New("render: service error: quota")
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, sess.ID, nil)
	require.NoError(t, err)

	sess, err = f.svc.Submit(ctx, sess.ID)
	require.Error(t, err)
	assert.Equal(t, model.StageReview, sess.Stage)

	stored, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(stored.Errors, "\n"), "rendering failed")
}

func TestSubmit_NoUsableTarget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "x", TemplateSet: "pengadaan_small"})
	require.NoError(t, err)
	sess.Recipes = sess.Recipes[1:]
	sess.Stage = model.StageReview
	require.NoError(t, f.store.SaveSession(ctx, sess))

	sess, err = f.svc.Submit(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNoDocuments)
	require.Len(t, sess.Results, 1)
	assert.Equal(t, model.RenderSkipped, sess.Results[0].Status)
	assert.Nil(t, f.render.got)
}

func TestReset(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Reset(ctx, sess.ID))
	_, err = f.svc.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.svc.Reset(ctx, sess.ID), store.ErrNotFound)
}

func TestReset_KeepsSessionLock(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	sess, err := f.svc.Start(ctx, StartRequest{Description: "Pengadaan server"})
	require.NoError(t, err)

	// The mutex a caller queued behind Reset would be holding next.
	v, ok := f.svc.locks.Load(sess.ID)
	require.True(t, ok)
	queued := v.(*sync.Mutex)

	require.NoError(t, f.svc.Reset(ctx, sess.ID))

	queued.Lock()
	acquired := make(chan struct{})
	go func() {
		unlock := f.svc.lock(sess.ID)
		close(acquired)
		unlock()
	}()
	select {
	case <-acquired:
		t.Fatal("session lock acquired while another caller held it")
	case <-time.After(50 * time.Millisecond):
	}
	queued.Unlock()
	<-acquired
}
