package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docforge/internal/model"
	"github.com/sells-group/docforge/internal/payload"
	"github.com/sells-group/docforge/pkg/render"
)

// Submit builds one payload per recipe, sends the batch to the rendering
// service and records per-document results. Recipes without a usable target
// id are recorded as skipped.
func (s *Service) Submit(ctx context.Context, id string) (*model.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.load(ctx, id, model.StageReview)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("session", sess.ID))

	batch := payload.Build(sess.Values, recipePtrs(sess.Recipes))
	results := make([]model.RenderResult, 0, len(batch.Documents)+len(batch.Skipped))
	for _, sk := range batch.Skipped {
		results = append(results, model.RenderResult{
			Source:  sk.Source,
			Status:  model.RenderSkipped,
			Message: sk.Reason,
		})
	}
	if len(batch.Documents) == 0 {
		sess.Results = results
		return sess, ErrNoDocuments
	}

	req := &render.Request{Documents: make([]render.Document, len(batch.Documents))}
	for i, d := range batch.Documents {
		req.Documents[i] = render.Document{GoogleDocID: d.TargetID, DataToFill: d.Data}
	}

	log.Info("pipeline: submitting documents", zap.Int("documents", len(req.Documents)), zap.Int("skipped", len(batch.Skipped)))
	resp, err := s.d.Render.Render(ctx, req)
	if err != nil {
		warn(sess, "rendering failed: %v", err)
		if saveErr := s.save(ctx, sess); saveErr != nil {
			log.Error("pipeline: save after render failure", zap.Error(saveErr))
		}
		return sess, eris.Wrap(err, "pipeline: render")
	}

	results = append(results, matchResults(batch.Documents, resp.Results)...)
	sess.Results = results
	sess.Stage = model.StageSubmitted

	if err := s.d.Store.RecordRender(ctx, sess.ID, results); err != nil {
		log.Error("pipeline: record render results", zap.Error(err))
	}
	for _, r := range results {
		log.Info("pipeline: document result",
			zap.String("target_id", r.TargetID),
			zap.String("status", string(r.Status)),
			zap.String("doc_url", r.DocURL),
			zap.String("message", r.Message),
		)
	}
	return sess, s.save(ctx, sess)
}

// matchResults pairs service results with submitted documents by template id,
// falling back to position. Documents the service did not report on are
// marked failed.
func matchResults(docs []payload.Document, got []render.Result) []model.RenderResult {
	byID := make(map[string]render.Result, len(got))
	for _, r := range got {
		if r.TemplateID != "" {
			byID[r.TemplateID] = r
		}
	}

	out := make([]model.RenderResult, len(docs))
	for i, d := range docs {
		r, ok := byID[d.TargetID]
		if !ok && i < len(got) && got[i].TemplateID == "" {
			r, ok = got[i], true
		}
		res := model.RenderResult{Source: d.Source, TargetID: d.TargetID}
		switch {
		case !ok:
			res.Status = model.RenderFailed
			res.Message = "no result reported by rendering service"
		case r.OK():
			res.Status = model.RenderSuccess
			res.FileName = r.FileName
			res.DocURL = r.DocURL
		default:
			res.Status = model.RenderFailed
			res.Message = r.Message
		}
		out[i] = res
	}
	return out
}
