package recipients

import (
	"cmp"
	"context"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/safewatch/internal/datastore"
	"github.com/tphakala/safewatch/internal/errors"
	"github.com/tphakala/safewatch/internal/logger"
	"github.com/tphakala/safewatch/internal/model"
)

// ContactBook manages the emergency contacts of users.
type ContactBook struct {
	contacts *datastore.Repository[model.EmergencyContact]
	now      func() time.Time
}

// NewContactBook creates a ContactBook.
func NewContactBook(contacts *datastore.Repository[model.EmergencyContact]) *ContactBook {
	return &ContactBook{contacts: contacts, now: time.Now}
}

func contactError(msg string) error {
	return errors.Newf("%s", msg).
		Component("recipients").
		Category(errors.CategoryValidation).
		Build()
}

// Add validates c, assigns an id and creation time, and stores it.
func (b *ContactBook) Add(ctx context.Context, c model.EmergencyContact) (*model.EmergencyContact, error) {
	c.UserID = strings.TrimSpace(c.UserID)
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	switch {
	case c.UserID == "":
		return nil, contactError("user id is required")
	case c.Name == "":
		return nil, contactError("contact name is required")
	case c.Email == "":
		return nil, contactError("contact email is required")
	}
	addr, err := mail.ParseAddress(c.Email)
	if err != nil {
		return nil, contactError("contact email is not a valid address")
	}
	c.Email = addr.Address

	c.ID = uuid.NewString()
	c.CreatedAt = b.now().UTC()
	if err := b.contacts.Create(ctx, &c); err != nil {
		return nil, err
	}
	GetLogger().Info("emergency contact added",
		logger.String("user_id", c.UserID),
		logger.String("contact_id", c.ID))
	return &c, nil
}

// List returns a user's contacts in creation order.
func (b *ContactBook) List(ctx context.Context, userID string) ([]model.EmergencyContact, error) {
	out, err := b.contacts.Query(ctx, datastore.Query{UserID: userID})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b model.EmergencyContact) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
