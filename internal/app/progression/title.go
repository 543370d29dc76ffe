package progression

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/dadbase/dadbase/internal/domain"
)

// UnlockedTitles filters the catalog down to the automatic titles the
// metrics qualify for. Special titles are never part of this pass.
func (e *Engine) UnlockedTitles(m domain.Metrics) ([]domain.TitleDefinition, error) {
	out := []domain.TitleDefinition{}
	for _, t := range e.catalog.Titles {
		ok, err := meets(m, t.Requirement)
		if err != nil {
			return nil, fmt.Errorf("title %q: %w", t.ID, err)
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// AvailableTitles returns every title the user may select right now:
// automatic titles recomputed from current metrics plus granted special
// titles, in catalog order.
func (e *Engine) AvailableTitles(ctx context.Context, userID string) ([]domain.TitleDefinition, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	m, err := e.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}
	return e.availableTitles(user, m)
}

func (e *Engine) availableTitles(user domain.UserProgression, m domain.Metrics) ([]domain.TitleDefinition, error) {
	out := []domain.TitleDefinition{}
	for _, t := range e.catalog.Titles {
		if t.Requirement.Dimension == domain.DimSpecial {
			if slices.Contains(user.SpecialTitles, t.ID) {
				out = append(out, t)
			}
			continue
		}
		ok, err := meets(m, t.Requirement)
		if err != nil {
			return nil, fmt.Errorf("title %q: %w", t.ID, err)
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// SetActiveTitle selects a title the user currently qualifies for.
// An empty id clears the selection. Anything else not in the available set
// fails with ErrTitleNotUnlocked.
func (e *Engine) SetActiveTitle(ctx context.Context, userID, titleID string) error {
	if titleID == "" {
		return e.store.SetActiveTitle(ctx, userID, "")
	}

	available, err := e.AvailableTitles(ctx, userID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(available, func(t domain.TitleDefinition) bool { return t.ID == titleID }) {
		return fmt.Errorf("title %q: %w", titleID, domain.ErrTitleNotUnlocked)
	}
	if err := e.store.SetActiveTitle(ctx, userID, titleID); err != nil {
		return err
	}
	log.WithFields(log.Fields{"user_id": userID, "title": titleID}).Info("active title set")
	return nil
}

// GrantSpecialTitle unlocks a special title out-of-band. Only catalog titles
// with a special requirement can be granted. Returns false if already held.
func (e *Engine) GrantSpecialTitle(ctx context.Context, userID, titleID string) (bool, error) {
	t, ok := e.catalog.Title(titleID)
	if !ok || t.Requirement.Dimension != domain.DimSpecial {
		return false, fmt.Errorf("special title %q: %w", titleID, domain.ErrUnknownTitle)
	}
	if _, err := e.store.GetUser(ctx, userID); err != nil {
		return false, err
	}
	added, err := e.store.AddSpecialTitle(ctx, userID, titleID)
	if err != nil {
		return false, err
	}
	if added {
		log.WithFields(log.Fields{
			"user_id":   userID,
			"title":     titleID,
			"condition": t.Requirement.Condition,
		}).Info("special title granted")
	}
	return added, nil
}
