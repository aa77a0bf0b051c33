// Package recipients builds the notification target list for a user.
package recipients

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// DefaultOperatorName labels the admin recipient when none is configured.
const DefaultOperatorName = "SafeWatch Operations"

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("recipients")
}

// Operator is the fixed admin recipient.
type Operator struct {
	Name  string
	Email string
}

// Resolver lists who to notify about a user's emergency.
type Resolver struct {
	contacts *datastore.Repository[model.EmergencyContact]
	operator Operator
}

// NewResolver creates a Resolver. The operator email is required.
func NewResolver(contacts *datastore.Repository[model.EmergencyContact], op Operator) (*Resolver, error) {
	op.Email = strings.TrimSpace(op.Email)
	if op.Email == "" {
		return nil, errors.Newf("operator email is required").
			Component("recipients").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if op.Name == "" {
		op.Name = DefaultOperatorName
	}
	return &Resolver{contacts: contacts, operator: op}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Resolve returns the admin recipient first, followed by the user's
// emergency contacts in creation order. Contacts sharing the operator
// address, duplicates and contacts without an email are skipped, so the
// list is never empty and never names an address twice.
//
// A contact lookup failure is returned together with the admin-only list so
// that the operator is still alerted.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]model.Recipient, error) {
	out := []model.Recipient{{
		Name:  r.operator.Name,
		Email: r.operator.Email,
		Type:  model.RecipientAdmin,
	}}

	contacts, err := r.contacts.Query(ctx, datastore.Query{UserID: userID})
	if err != nil {
		GetLogger().Error("failed to load emergency contacts",
			logger.String("user_id", userID),
			logger.Error(err))
		return out, errors.New(err).
			Component("recipients").
			Context("user_id", userID).
			Build()
	}

	slices.SortStableFunc(contacts, func(a, b model.EmergencyContact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	seen := map[string]struct{}{normalizeEmail(r.operator.Email): {}}
	skipped := 0
	for _, c := range contacts {
		key := normalizeEmail(c.Email)
		if key == "" {
			skipped++
			continue
		}
		if _, dup := seen[key]; dup {
			skipped++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, model.Recipient{
			Name:         c.Name,
			Email:        strings.TrimSpace(c.Email),
			Type:         model.RecipientEmergencyContact,
			Relationship: c.Relationship,
		})
	}

	GetLogger().Debug("resolved recipients",
		logger.String("user_id", userID),
		logger.Int("contacts", len(contacts)),
		logger.Int("recipients", len(out)),
		logger.Int("skipped", skipped))
	return out, nil
}
