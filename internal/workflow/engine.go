package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/rcolomer-cos/E-QMS-sub001/internal/models"
	"github.com/rcolomer-cos/E-QMS-sub001/internal/repository"
	appErrors "github.com/rcolomer-cos/E-QMS-sub001/pkg/errors"
)

// Action identifies a workflow operation requested by a caller.
type Action string

const (
	ActionStart           Action = "start"
	ActionComplete        Action = "complete"
	ActionSubmitForReview Action = "submit_for_review"
	ActionApprove         Action = "approve"
	ActionReject          Action = "reject"
	ActionRequestChanges  Action = "request_changes"
	ActionObsolete        Action = "obsolete"
)

// TransitionKey pairs the current status with the requested action.
type TransitionKey struct {
	From   string
	Action Action
}

// Policy describes action-level requirements independent of the current
// status: the ledger change type, whether explanatory text is mandatory, and
// which roles may perform it. An empty role set means any authenticated user.
type Policy struct {
	ChangeType    models.RevisionChangeType
	RequireReason bool
	ReasonField   string
	Roles         []models.UserRole
}

// Definition declares the full state machine for one entity type: every
// permitted (status, action) pair and the action policies. Anything not in
// the table is an invalid transition; there are no ad hoc status checks
// anywhere else.
type Definition struct {
	EntityType models.EntityType
	Rules      map[TransitionKey]string
	Policies   map[Action]Policy
}

// EntityStore is the persistence the engine drives. Implementations must
// make CompareAndSetStatus conditional on the expected status and report a
// lost race as sql.ErrNoRows.
type EntityStore interface {
	Status(ctx context.Context, tx *sqlx.Tx, id string) (string, error)
	CompareAndSetStatus(ctx context.Context, tx *sqlx.Tx, id, expected, next string) error
}

// Ledger appends revision entries inside the engine's transaction.
type Ledger interface {
	Append(ctx context.Context, tx *sqlx.Tx, rev *models.Revision) error
}

// MetricsObserver counts transition outcomes.
type MetricsObserver interface {
	ObserveWorkflowTransition(entityType, action, outcome string)
}

// Request asks the engine to perform one transition.
type Request struct {
	EntityType  models.EntityType
	EntityID    string
	Action      Action
	Actor       models.Actor
	Reason      string
	Description string
}

// Result reports a committed transition.
type Result struct {
	EntityID string
	From     string
	To       string
	Revision models.Revision
}

type binding struct {
	def   Definition
	store EntityStore
}

// Engine is the reusable review-and-approval state machine. It is generic
// over entity type: each registered Definition supplies the transition table
// and the store that owns the entity's status column. Every transition is a
// single transaction covering the compare-and-swap status write and the
// ledger append.
type Engine struct {
	runner   repository.TxRunner
	ledger   Ledger
	logger   *zap.Logger
	metrics  MetricsObserver
	bindings map[models.EntityType]binding
}

// Option configures the engine.
type Option func(*Engine)

// WithMetrics attaches a transition outcome observer.
func WithMetrics(m MetricsObserver) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New constructs the engine.
func New(runner repository.TxRunner, ledger Ledger, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		runner:   runner,
		ledger:   ledger,
		logger:   logger,
		bindings: make(map[models.EntityType]binding),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Register binds a state machine definition to its entity store.
func (e *Engine) Register(def Definition, store EntityStore) {
	e.bindings[def.EntityType] = binding{def: def, store: store}
}

// Transition validates and executes one workflow action. Precondition
// failures return typed errors: ErrNotFound for unknown ids, ErrValidation
// for missing reason text, ErrForbidden for role gaps, and
// ErrInvalidTransition when the action is not permitted from the current
// status, including when a concurrent caller won the status race. The
// entity is loaded before the reason and role checks so a bad request
// against a missing id still reports 404.
func (e *Engine) Transition(ctx context.Context, req Request) (*Result, error) {
	b, ok := e.bindings[req.EntityType]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("no workflow registered for entity type %q", req.EntityType))
	}

	policy, ok := b.def.Policies[req.Action]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported action %q", req.Action))
	}
	if req.Actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	var result *Result
	err := e.runner.RunInTx(ctx, func(tx *sqlx.Tx) error {
		current, err := b.store.Status(ctx, tx, req.EntityID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("%s not found", req.EntityType))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current status")
		}

		// policy checks run after the load so unknown ids map to 404
		if policy.RequireReason && strings.TrimSpace(req.Reason) == "" {
			field := policy.ReasonField
			if field == "" {
				field = "reason"
			}
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s is required", field))
		}
		if len(policy.Roles) > 0 && !roleAllowed(policy.Roles, req.Actor.Role) {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not %s a %s", req.Actor.Role, req.Action, req.EntityType))
		}

		next, ok := b.def.Rules[TransitionKey{From: current, Action: req.Action}]
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot %s a %s in status %s", req.Action, req.EntityType, current))
		}

		if err := b.store.CompareAndSetStatus(ctx, tx, req.EntityID, current, next); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				// Lost the race: another transition moved the entity
				// between our read and the conditional write.
				return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("%s status changed concurrently", req.EntityType))
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
		}

		rev := models.Revision{
			EntityType:        req.EntityType,
			EntityID:          req.EntityID,
			ChangeType:        policy.ChangeType,
			ChangeDescription: req.Description,
			ChangeReason:      req.Reason,
			StatusBefore:      current,
			StatusAfter:       next,
			AuthorID:          req.Actor.ID,
		}
		if err := e.ledger.Append(ctx, tx, &rev); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append revision")
		}

		result = &Result{EntityID: req.EntityID, From: current, To: next, Revision: rev}
		return nil
	})
	if err != nil {
		e.observe(req, "failure")
		return nil, err
	}

	e.observe(req, "success")
	e.logger.Info("workflow transition",
		zap.String("entity_type", string(req.EntityType)),
		zap.String("entity_id", req.EntityID),
		zap.String("action", string(req.Action)),
		zap.String("from", result.From),
		zap.String("to", result.To),
		zap.String("actor", req.Actor.ID),
	)
	return result, nil
}

func (e *Engine) observe(req Request, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ObserveWorkflowTransition(string(req.EntityType), string(req.Action), outcome)
}

func roleAllowed(allowed []models.UserRole, role models.UserRole) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
