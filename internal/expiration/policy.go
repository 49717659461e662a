// Package expiration removes entities whose retention period has passed.
package expiration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/edm"
)

// ErrInvalidPolicy is returned for an expiration policy that cannot run.
var ErrInvalidPolicy = errors.New("invalid expiration policy")

// Policy is the retention rule of one entity set.
type Policy struct {
	EntitySetID      uuid.UUID
	Type             edm.ExpirationType
	TimeToExpiration time.Duration
	// StartDateProperty is the Date or DateTimeOffset property type read
	// by DATE_PROPERTY policies.
	StartDateProperty edm.PropertyType
	DeleteType        edm.DeleteType
}

// Cutoff returns the instant before which data has expired.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-p.TimeToExpiration)
}

// PolicyFor builds the policy of es from its catalog expiration. It
// returns false when the entity set has no expiration.
func PolicyFor(cat *edm.Catalog, es edm.EntitySet) (Policy, bool, error) {
	exp := es.Expiration
	if exp == nil {
		return Policy{}, false, nil
	}
	ttl, err := time.ParseDuration(exp.TimeToExpiration)
	if err != nil {
		return Policy{}, false, fmt.Errorf("entity set %s: time to expiration %q: %w", es.Name, exp.TimeToExpiration, ErrInvalidPolicy)
	}
	if ttl <= 0 {
		return Policy{}, false, fmt.Errorf("entity set %s: time to expiration must be positive: %w", es.Name, ErrInvalidPolicy)
	}
	p := Policy{
		EntitySetID:      es.ID,
		Type:             exp.Type,
		TimeToExpiration: ttl,
		DeleteType:       exp.DeleteType,
	}
	if p.DeleteType == "" {
		p.DeleteType = edm.SoftDelete
	}
	if p.DeleteType != edm.SoftDelete && p.DeleteType != edm.HardDelete {
		return Policy{}, false, fmt.Errorf("entity set %s: delete type %q: %w", es.Name, p.DeleteType, ErrInvalidPolicy)
	}

	switch exp.Type {
	case edm.ExpireFirstWrite, edm.ExpireLastWrite:
	case edm.ExpireDateProperty:
		if exp.StartDateProperty == nil {
			return Policy{}, false, fmt.Errorf("entity set %s: %s requires a start date property: %w", es.Name, exp.Type, ErrInvalidPolicy)
		}
		pt, ok := cat.PropertyType(*exp.StartDateProperty)
		if !ok {
			return Policy{}, false, fmt.Errorf("entity set %s: start date property %s: %w", es.Name, *exp.StartDateProperty, edm.ErrNotInCatalog)
		}
		if !pt.Datatype.Temporal() {
			return Policy{}, false, fmt.Errorf("entity set %s: start date property %s is %s: %w", es.Name, pt.Type, pt.Datatype, ErrInvalidPolicy)
		}
		p.StartDateProperty = pt
	default:
		return Policy{}, false, fmt.Errorf("entity set %s: expiration type %q: %w", es.Name, exp.Type, ErrInvalidPolicy)
	}
	return p, true, nil
}

// Policies returns the policy of every entity set in the catalog that has
// one, ordered by entity set name.
func Policies(cat *edm.Catalog) ([]Policy, error) {
	var (
		out  []Policy
		errs []error
	)
	for _, es := range cat.EntitySets() {
		p, ok, err := PolicyFor(cat, es)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, errors.Join(errs...)
}
