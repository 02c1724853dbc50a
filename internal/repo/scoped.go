package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dealerhub/dealer-pricing/internal/validity"
	"github.com/dealerhub/dealer-pricing/pkg/db"
	"github.com/dealerhub/dealer-pricing/pkg/db/models"
	"github.com/dealerhub/dealer-pricing/pkg/pagination"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

// Mapper converts between an engine rule and its gorm row.
type Mapper[P validity.Payload, M any] interface {
	// Kind names the rule family in audit rows and lock keys.
	Kind() string
	ToModel(rule validity.Rule[P]) M
	ToRule(row M) (validity.Rule[P], error)
}

// ScopedRepository is the gorm implementation of validity.Repository. Rows must
// carry id, product_id, dealer_id and valid_from columns.
type ScopedRepository[P validity.Payload, M any] struct {
	Base
	client *db.Client
	mapper Mapper[P, M]
	locker validity.ScopeLocker
	newID  func() uuid.UUID
}

// NewScopedRepository wires the repository. locker may be nil when the database lock is enough.
func NewScopedRepository[P validity.Payload, M any](client *db.Client, mapper Mapper[P, M], locker validity.ScopeLocker) *ScopedRepository[P, M] {
	return &ScopedRepository[P, M]{
		Base:   NewBase(client.DB()),
		client: client,
		mapper: mapper,
		locker: locker,
		newID:  uuid.New,
	}
}

func (r *ScopedRepository[P, M]) Get(ctx context.Context, id uuid.UUID) (validity.Rule[P], error) {
	var row M
	err := r.DB(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return validity.Rule[P]{}, &validity.NotFoundError{RuleID: id}
	}
	if err != nil {
		return validity.Rule[P]{}, fmt.Errorf("get %s rule %s: %w", r.mapper.Kind(), id, err)
	}
	return r.mapper.ToRule(row)
}

func (r *ScopedRepository[P, M]) ListByScope(ctx context.Context, scope validity.ScopeKey) ([]validity.Rule[P], error) {
	q := r.DB(ctx).Where("product_id = ?", scope.ProductID)
	if scope.DealerID == nil {
		q = q.Where("dealer_id IS NULL")
	} else {
		q = q.Where("dealer_id = ?", *scope.DealerID)
	}

	var rows []M
	if err := q.Order("valid_from ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s rules for %s: %w", r.mapper.Kind(), scope, err)
	}

	// Corrupt rows are reported together so the audit can list all of them.
	out := make([]validity.Rule[P], 0, len(rows))
	var corrupt error
	for _, row := range rows {
		rule, err := r.mapper.ToRule(row)
		if err != nil {
			var bad *validity.CorruptRuleError
			if !errors.As(err, &bad) {
				return nil, err
			}
			corrupt = multierr.Append(corrupt, err)
			continue
		}
		out = append(out, rule)
	}
	return out, corrupt
}

// Transact holds the optional scope lock, then runs fn in a database transaction
// that is serialized per scope.
func (r *ScopedRepository[P, M]) Transact(ctx context.Context, scope validity.ScopeKey, fn func(ctx context.Context, tx validity.Tx[P]) error) error {
	if r.locker != nil {
		release, err := r.locker.Lock(ctx, scope)
		if err != nil {
			return fmt.Errorf("lock %s: %w", scope, err)
		}
		defer release()
	}

	lockName := r.mapper.Kind() + ":" + scope.Key()
	return r.client.WithScopeTx(ctx, lockName, func(tx *gorm.DB) error {
		return fn(ContextWithTx(ctx, tx), &scopedTx[P, M]{repo: r, scope: scope})
	})
}

// Scopes lists every scope holding at least one rule, product first and the
// global scope ahead of dealer scopes.
func (r *ScopedRepository[P, M]) Scopes(ctx context.Context) ([]validity.ScopeKey, error) {
	var rows []struct {
		ProductID int64
		DealerID  *int64
	}
	var model M
	if err := r.DB(ctx).Model(&model).Distinct("product_id", "dealer_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s scopes: %w", r.mapper.Kind(), err)
	}

	scopes := make([]validity.ScopeKey, 0, len(rows))
	for _, row := range rows {
		scopes = append(scopes, validity.ScopeKey{ProductID: row.ProductID, DealerID: row.DealerID})
	}
	sort.Slice(scopes, func(i, j int) bool {
		a, b := scopes[i], scopes[j]
		if a.ProductID != b.ProductID {
			return a.ProductID < b.ProductID
		}
		if a.DealerID == nil || b.DealerID == nil {
			return a.DealerID == nil && b.DealerID != nil
		}
		return *a.DealerID < *b.DealerID
	})
	return scopes, nil
}

// Events pages through the audit trail of one rule, oldest first. The returned
// cursor is empty on the last page.
func (r *ScopedRepository[P, M]) Events(ctx context.Context, ruleID uuid.UUID, params pagination.Params) ([]models.RuleAuditEvent, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}

	q := r.DB(ctx).Where("rule_kind = ? AND rule_id = ?", r.mapper.Kind(), ruleID)
	if cursor != nil {
		q = q.Where("(occurred_at > ?) OR (occurred_at = ? AND id > ?)", cursor.At, cursor.At, cursor.ID)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var rows []models.RuleAuditEvent
	err = q.Order("occurred_at ASC").Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, "", fmt.Errorf("list audit events for %s: %w", ruleID, err)
	}

	var next string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{At: last.OccurredAt, ID: last.ID})
	}
	return rows, next, nil
}

type scopedTx[P validity.Payload, M any] struct {
	repo  *ScopedRepository[P, M]
	scope validity.ScopeKey
}

func (t *scopedTx[P, M]) Get(ctx context.Context, id uuid.UUID) (validity.Rule[P], error) {
	return t.repo.Get(ctx, id)
}

func (t *scopedTx[P, M]) ListByScope(ctx context.Context, scope validity.ScopeKey) ([]validity.Rule[P], error) {
	return t.repo.ListByScope(ctx, scope)
}

func (t *scopedTx[P, M]) Insert(ctx context.Context, rule validity.Rule[P]) error {
	if err := t.bound(rule); err != nil {
		return err
	}
	row := t.repo.mapper.ToModel(rule)
	if err := t.repo.DB(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert %s rule %s: %w", t.repo.mapper.Kind(), rule.ID, err)
	}
	return nil
}

func (t *scopedTx[P, M]) Update(ctx context.Context, rule validity.Rule[P]) error {
	if err := t.bound(rule); err != nil {
		return err
	}
	row := t.repo.mapper.ToModel(rule)
	res := t.repo.DB(ctx).Model(&row).Where("id = ?", rule.ID).Select("*").Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update %s rule %s: %w", t.repo.mapper.Kind(), rule.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return &validity.NotFoundError{RuleID: rule.ID}
	}
	return nil
}

func (t *scopedTx[P, M]) RecordEvent(ctx context.Context, event validity.Event[P]) error {
	after, err := json.Marshal(t.repo.mapper.ToModel(event.After))
	if err != nil {
		return fmt.Errorf("encode audit snapshot: %w", err)
	}
	row := models.RuleAuditEvent{
		ID:         t.repo.newID(),
		RuleKind:   t.repo.mapper.Kind(),
		RuleID:     event.RuleID,
		ProductID:  event.Scope.ProductID,
		DealerID:   event.Scope.DealerID,
		Mode:       string(event.Mode),
		ActorID:    event.Actor.ID,
		ActorRole:  event.Actor.Role,
		After:      after,
		OccurredAt: event.OccurredAt,
	}
	if event.Before != nil {
		before, err := json.Marshal(t.repo.mapper.ToModel(*event.Before))
		if err != nil {
			return fmt.Errorf("encode audit snapshot: %w", err)
		}
		row.Before = before
	}
	if err := t.repo.DB(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit event for %s: %w", event.RuleID, err)
	}
	return nil
}

func (t *scopedTx[P, M]) bound(rule validity.Rule[P]) error {
	if !rule.Scope.Equal(t.scope) {
		return fmt.Errorf("rule %s is in scope %s, transaction holds %s", rule.ID, rule.Scope, t.scope)
	}
	return nil
}
