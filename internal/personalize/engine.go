package personalize

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/outreach/internal/model"
	"github.com/edvin/outreach/internal/resolver"
)

// Audience yields recipient rows for a target group.
type Audience interface {
	Stream(ctx context.Context, tg model.TargetGroup, fn func(model.RecipientRow) error) (int, error)
	Preview(ctx context.Context, tg model.TargetGroup, limit int) ([]model.RecipientRow, error)
}

// EmitFunc receives each rendered message. It may be called concurrently.
// A returned error aborts the run.
type EmitFunc func(ctx context.Context, msg model.PersonalizedMessage) error

// Engine renders one message per (recipient, template) of a workflow.
type Engine struct {
	audience Audience
	resolver *resolver.Resolver
	workers  int
	logger   zerolog.Logger
}

// NewEngine creates an Engine that resolves up to workers recipients at once.
func NewEngine(audience Audience, res *resolver.Resolver, workers int, logger zerolog.Logger) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{audience: audience, resolver: res, workers: workers, logger: logger}
}

// Validate checks every variable mapping of the plan and returns one
// *model.ConfigurationError per problem. Invalid mappings still resolve to
// their default at run time.
func (e *Engine) Validate(plan *model.WorkflowPlan) []error {
	var errs []error
	for _, tp := range plan.Templates {
		for _, m := range tp.Mappings {
			if err := e.resolver.Validate(m); err != nil {
				errs = append(errs, fmt.Errorf("template %s: %w", tp.Template.ID, err))
			}
		}
	}
	for _, tm := range plan.TargetMappings {
		for _, fm := range tm.FieldMappings {
			if err := e.resolver.Validate(fm.AsVariableMapping()); err != nil {
				errs = append(errs, fmt.Errorf("target mapping %s: %w", tm.ID, err))
			}
		}
	}
	return errs
}

// GroupResult summarizes one target group's pass.
type GroupResult struct {
	TargetGroupID string
	Recipients    int
	Messages      int
	Duplicates    int
	Fallbacks     int
}

// Run is one execution of a workflow plan. Query results are shared across
// its groups and each contact receives a template at most once.
type Run struct {
	engine  *Engine
	plan    *model.WorkflowPlan
	session *resolver.Session

	seen map[string]map[string]struct{}
}

// NewRun starts a run of plan.
func (e *Engine) NewRun(plan *model.WorkflowPlan) *Run {
	seen := make(map[string]map[string]struct{}, len(plan.Templates))
	for _, tp := range plan.Templates {
		seen[tp.Template.ID] = map[string]struct{}{}
	}
	return &Run{engine: e, plan: plan, session: e.resolver.NewSession(), seen: seen}
}

// Run renders messages for every target group of plan in order.
func (e *Engine) Run(ctx context.Context, plan *model.WorkflowPlan, emit EmitFunc) ([]GroupResult, error) {
	run := e.NewRun(plan)
	results := make([]GroupResult, 0, len(plan.TargetGroups))
	for _, tg := range plan.TargetGroups {
		res, err := run.Group(ctx, tg, emit)
		results = append(results, res)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// binding is the effective set of mappings for one (group, template) pair.
type binding struct {
	template  model.Template
	variables []string
	mappings  map[string]model.VariableMapping
}

func (r *Run) bindings(tg model.TargetGroup) []binding {
	out := make([]binding, 0, len(r.plan.Templates))
	for _, tp := range r.plan.Templates {
		b := binding{
			template:  tp.Template,
			variables: ExtractVariables(tp.Template.Content),
			mappings:  make(map[string]model.VariableMapping, len(tp.Mappings)),
		}
		for _, m := range tp.Mappings {
			if _, dup := b.mappings[m.TemplateVariable]; !dup {
				b.mappings[m.TemplateVariable] = m
			}
		}
		if tm := r.plan.TargetMapping(tg.ID, tp.Template.ID); tm != nil {
			for _, fm := range tm.FieldMappings {
				b.mappings[fm.TemplateVariable] = fm.AsVariableMapping()
			}
		}
		out = append(out, b)
	}
	return out
}

// Group streams one target group and emits a message per (recipient,
// template). Audience failures abort the group and are returned as is.
func (r *Run) Group(ctx context.Context, tg model.TargetGroup, emit EmitFunc) (GroupResult, error) {
	result := GroupResult{TargetGroupID: tg.ID}
	bindings := r.bindings(tg)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.engine.workers)

	var (
		messages  atomic.Int64
		fallbacks atomic.Int64
	)

	n, streamErr := r.engine.audience.Stream(gctx, tg, func(row model.RecipientRow) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		for _, b := range bindings {
			seen := r.seen[b.template.ID]
			if _, dup := seen[row.Contact]; dup {
				result.Duplicates++
				continue
			}
			seen[row.Contact] = struct{}{}

			g.Go(func() error {
				msg, _ := r.render(gctx, b, tg.ID, row)
				messages.Add(1)
				fallbacks.Add(int64(msg.FallbackCount))
				return emit(gctx, msg)
			})
		}
		return nil
	})
	waitErr := g.Wait()

	result.Recipients = n
	result.Messages = int(messages.Load())
	result.Fallbacks = int(fallbacks.Load())
	r.engine.logger.Debug().
		Str("target_group_id", tg.ID).
		Int("recipients", result.Recipients).
		Int("messages", result.Messages).
		Int("duplicates", result.Duplicates).
		Msg("target group rendered")

	if waitErr != nil {
		return result, waitErr
	}
	if streamErr != nil {
		return result, streamErr
	}
	return result, nil
}

func (r *Run) render(ctx context.Context, b binding, targetGroupID string, row model.RecipientRow) (model.PersonalizedMessage, []resolver.Resolution) {
	values := make(map[string]string, len(b.variables))
	resolutions := make([]resolver.Resolution, 0, len(b.variables))
	msg := model.PersonalizedMessage{
		RecipientContact: row.Contact,
		TemplateID:       b.template.ID,
		TargetGroupID:    targetGroupID,
	}

	for _, v := range b.variables {
		m, ok := b.mappings[v]
		if !ok {
			resolutions = append(resolutions, resolver.Resolution{Variable: v, UsedDefault: true, Reason: resolver.ReasonInvalidMapping})
			msg.FallbackCount++
			continue
		}
		res := r.session.Resolve(ctx, m, row)
		res.Variable = v
		if res.UsedDefault {
			msg.FallbackCount++
		}
		values[v] = res.Value
		resolutions = append(resolutions, res)
	}

	msg.RenderedContent = Render(b.template.Content, values)
	return msg, resolutions
}

// PreviewMessage is a rendered message together with how each variable resolved.
type PreviewMessage struct {
	model.PersonalizedMessage
	Resolutions []resolver.Resolution `json:"resolutions"`
}

// Preview renders messages for the first limit rows of each target group.
// The result is for display only and is never delivered.
func (e *Engine) Preview(ctx context.Context, plan *model.WorkflowPlan, limit int) ([]PreviewMessage, error) {
	run := e.NewRun(plan)
	var out []PreviewMessage
	for _, tg := range plan.TargetGroups {
		rows, err := e.audience.Preview(ctx, tg, limit)
		if err != nil {
			return nil, err
		}
		for _, b := range run.bindings(tg) {
			for _, row := range rows {
				msg, resolutions := run.render(ctx, b, tg.ID, row)
				out = append(out, PreviewMessage{PersonalizedMessage: msg, Resolutions: resolutions})
			}
		}
	}
	return out, nil
}
