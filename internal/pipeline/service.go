package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/calc"
	"github.com/sells-group/docforge/internal/extract"
	"github.com/sells-group/docforge/internal/llm"
	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/recipe"
	"github.com/sells-group/docforge/internal/store"
	"github.com/sells-group/docforge/pkg/render"
	"github.com/sells-group/docforge/pkg/sheets"
)

// Errors returned by Service operations.
var (
	ErrWrongStage   = eris.New("pipeline: operation not allowed at this stage")
	ErrEmptyRequest = eris.New("pipeline: description is required")
	ErrUnknownTitle = eris.New("pipeline: title is not among the matches")
	ErrNoDocuments  = eris.New("pipeline: no recipe has a usable target id")
)

// Deps are the collaborators of a Service. Sheet may be nil, which disables
// spreadsheet matching.
type Deps struct {
	LLM        llm.Provider
	Render     render.Client
	Store      store.Store
	Sheet      sheets.Source
	Recipes    *recipe.Cache
	Catalog    *recipe.Catalog
	Engine     *calc.Engine
	ListFields []extract.ListField
}

// Service runs document-generation sessions through the wizard stages.
// Each session is persisted after every step; operations on the same session
// are serialized.
type Service struct {
	d     Deps
	locks sync.Map // session id -> *sync.Mutex
}

// New creates a Service.
func New(d Deps) *Service {
	if d.Engine == nil {
		d.Engine = calc.NewEngine(nil)
	}
	if d.Recipes == nil {
		d.Recipes = recipe.NewCache(recipe.DefaultCacheTTL)
	}
	if d.ListFields == nil {
		d.ListFields = extract.DefaultListFields()
	}
	return &Service{d: d}
}

// StartRequest opens a session.
type StartRequest struct {
	Description string         `json:"description"`
	Sources     []model.Source `json:"sources,omitempty"`
	// Budget skips budget analysis when set.
	Budget *float64 `json:"budget,omitempty"`
	// TemplateSet skips catalog selection when set.
	TemplateSet string `json:"template_set,omitempty"`
	// UploadErrors are files that could not be turned into Sources. Each is
	// recorded as a session warning.
	UploadErrors []error `json:"-"`
}

// Start analyzes the request and either asks the user to pick a matching
// spreadsheet row (stage disambiguation) or selects the template set and
// extracts field values (stage verification).
func (s *Service) Start(ctx context.Context, req StartRequest) (*model.Session, error) {
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, ErrEmptyRequest
	}

	sess := &model.Session{
		ID:          uuid.New().String(),
		Stage:       model.StageInput,
		Description: desc,
		Sources:     req.Sources,
		Budget:      req.Budget,
		TemplateSet: req.TemplateSet,
	}
	unlock := s.lock(sess.ID)
	defer unlock()

	log := zap.L().With(zap.String("session", sess.ID))
	log.Info("pipeline: session started", zap.Int("sources", len(sess.Sources)))
	for _, uerr := range req.UploadErrors {
		warn(sess, "upload skipped: %v", uerr)
	}

	if sess.Budget == nil {
		sess.Budget = s.analyzeBudget(ctx, sess)
	}

	matches, err := s.matchSheet(ctx, sess.Description)
	if err != nil {
		warn(sess, "spreadsheet matching skipped: %v", err)
	}
	if len(matches) > 0 {
		sess.Matches = matches
		sess.Stage = model.StageDisambiguation
		log.Info("pipeline: awaiting spreadsheet choice", zap.Strings("matches", matches))
		return sess, s.save(ctx, sess)
	}

	if err := s.prepare(ctx, sess); err != nil {
		return sess, err
	}
	return sess, s.save(ctx, sess)
}

// Confirm resolves the disambiguation step. An empty title means none of the
// matches applies; otherwise the chosen row is appended to the description.
func (s *Service) Confirm(ctx context.Context, id, title string) (*model.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.load(ctx, id, model.StageDisambiguation)
	if err != nil {
		return nil, err
	}

	if title != "" {
		if !contains(sess.Matches, title) {
			return sess, eris.Wrapf(ErrUnknownTitle, "%q", title)
		}
		if err := s.augment(ctx, sess, title); err != nil {
			warn(sess, "spreadsheet row %q not added: %v", title, err)
		}
	}

	if err := s.prepare(ctx, sess); err != nil {
		return sess, err
	}
	return sess, s.save(ctx, sess)
}

// Verify overlays the user's edits on the extracted values, coerces list
// fields edited as text and runs the calculation engine. It may be called
// again from the review stage to revise values.
func (s *Service) Verify(ctx context.Context, id string, edits model.Values) (*model.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.load(ctx, id, model.StageVerification, model.StageReview)
	if err != nil {
		return nil, err
	}

	fields, _, err := recipe.Merge(recipePtrs(sess.Recipes)...)
	if err != nil {
		return sess, eris.Wrap(err, "pipeline: merge recipes")
	}

	values := sess.Extracted.Overlay(edits)
	extract.CoerceLists(values, s.d.ListFields)
	sess.Calculations = s.d.Engine.Run(fields, values)
	sess.Values = values
	sess.Stage = model.StageReview

	zap.L().Info("pipeline: values verified",
		zap.String("session", sess.ID),
		zap.Int("values", len(values)),
		zap.Int("calculations", len(sess.Calculations)),
	)
	return sess, s.save(ctx, sess)
}

// Reset discards the session.
func (s *Service) Reset(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	if err := s.d.Store.DeleteSession(ctx, id); err != nil {
		return eris.Wrapf(err, "pipeline: reset %s", id)
	}
	zap.L().Info("pipeline: session reset", zap.String("session", id))
	return nil
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.d.Store.GetSession(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: get %s", id)
	}
	return sess, nil
}

// analyzeBudget asks the model for the request's budget. Failures are
// recorded on the session and yield no budget.
func (s *Service) analyzeBudget(ctx context.Context, sess *model.Session) *float64 {
	raw, err := s.d.LLM.Generate(llm.WithPurpose(ctx, "budget"), extract.BudgetPrompt(sess.Description))
	if err != nil {
		warn(sess, "budget analysis failed: %v", err)
		return nil
	}
	budget, err := extract.ParseBudget(raw)
	if err != nil {
		warn(sess, "budget analysis returned an unusable answer: %v", err)
		return nil
	}
	if budget != nil {
		zap.L().Info("pipeline: budget detected", zap.String("session", sess.ID), zap.Float64("budget", *budget))
	}
	return budget
}

func (s *Service) matchSheet(ctx context.Context, description string) ([]string, error) {
	if s.d.Sheet == nil {
		return nil, nil
	}
	table, err := s.d.Sheet.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	titles := table.Values(extract.TitleColumn)
	if len(titles) == 0 {
		return nil, nil
	}
	raw, err := s.d.LLM.Generate(llm.WithPurpose(ctx, "match"), extract.MatchPrompt(description, titles))
	if err != nil {
		return nil, err
	}
	return extract.ParseMatches(raw, titles)
}

func (s *Service) augment(ctx context.Context, sess *model.Session, title string) error {
	table, err := s.d.Sheet.Fetch(ctx)
	if err != nil {
		return err
	}
	row, ok := table.Find(extract.TitleColumn, title)
	if !ok {
		return eris.Errorf("row %q no longer in spreadsheet", title)
	}
	sess.Description = extract.Augment(sess.Description, table.Columns, row)
	return nil
}

// prepare selects the template set, loads its recipes and runs extraction,
// leaving the session at the verification stage. A failed extraction
// degrades to empty values.
func (s *Service) prepare(ctx context.Context, sess *model.Session) error {
	set, err := s.selectSet(sess)
	if err != nil {
		return err
	}
	sess.TemplateSet = set.Name

	loaded, err := s.d.Recipes.LoadAll(s.d.Catalog.Paths(set))
	if err != nil {
		return eris.Wrapf(err, "pipeline: load recipes for %s", set.Name)
	}
	fields, examples, err := recipe.Merge(loaded...)
	if err != nil {
		return eris.Wrap(err, "pipeline: merge recipes")
	}
	sess.Recipes = make([]model.Recipe, len(loaded))
	for i, r := range loaded {
		sess.Recipes[i] = *r
	}

	prompt, err := extract.BuildPrompt(extract.PromptInput{
		Description: sess.Description,
		Supporting:  sess.Sources,
		Fields:      fields,
		Examples:    examples,
		ListFields:  s.d.ListFields,
	})
	if err != nil {
		return eris.Wrap(err, "pipeline: build prompt")
	}

	var result extract.Result
	raw, err := s.d.LLM.Generate(llm.WithPurpose(ctx, "extract"), prompt)
	if err != nil {
		result = extract.Result{Err: err.Error()}
	} else {
		result = extract.ParseResult(raw)
	}
	if !result.OK() {
		sess.ExtractionError = result.Err
		warn(sess, "extraction failed, continuing with empty values: %s", result.Err)
	}
	sess.Extracted = result.Extracted()
	sess.Values = sess.Extracted.Clone()
	sess.Stage = model.StageVerification

	zap.L().Info("pipeline: extraction complete",
		zap.String("session", sess.ID),
		zap.String("template_set", set.Name),
		zap.Int("fields", fields.Len()),
		zap.Int("extracted", len(sess.Extracted)),
		zap.Bool("repaired", result.Repaired),
	)
	return nil
}

func (s *Service) selectSet(sess *model.Session) (*recipe.TemplateSet, error) {
	if sess.TemplateSet != "" {
		set, ok := s.d.Catalog.Find(sess.TemplateSet)
		if !ok {
			return nil, eris.Wrapf(recipe.ErrNoTemplateSet, "%q", sess.TemplateSet)
		}
		return set, nil
	}
	set, err := s.d.Catalog.Select(sess.Budget, sess.Description)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: select template set")
	}
	return set, nil
}

func (s *Service) load(ctx context.Context, id string, allowed ...model.Stage) (*model.Session, error) {
	sess, err := s.d.Store.GetSession(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load %s", id)
	}
	for _, st := range allowed {
		if sess.Stage == st {
			return sess, nil
		}
	}
	return sess, eris.Wrapf(ErrWrongStage, "session %s is at %s", id, sess.Stage)
}

func (s *Service) save(ctx context.Context, sess *model.Session) error {
	return eris.Wrapf(s.d.Store.SaveSession(ctx, sess), "pipeline: save %s", sess.ID)
}

func (s *Service) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func warn(sess *model.Session, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	sess.Errors = append(sess.Errors, msg)
	zap.L().Warn("pipeline: "+msg, zap.String("session", sess.ID))
}

func recipePtrs(recipes []model.Recipe) []*model.Recipe {
	out := make([]*model.Recipe, len(recipes))
	for i := range recipes {
		out[i] = &recipes[i]
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// IsUserError reports whether err was caused by the request rather than a
// collaborator failure.
func IsUserError(err error) bool {
	for _, target := range []error{
		ErrWrongStage, ErrEmptyRequest, ErrUnknownTitle, ErrNoDocuments,
		recipe.ErrNoBudget, recipe.ErrNoTemplateSet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
