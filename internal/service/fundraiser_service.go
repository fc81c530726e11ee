package service

import (
	"context"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/models"
	"github.com/AmazingeventParis/Kooki/internal/pkg/apperror"
	"github.com/AmazingeventParis/Kooki/internal/plans"
)

// FundraiserService owns the fundraiser lifecycle: creation with plan
// resolution, opening-fee checkout for paid plans, and owner-driven status
// changes.
type FundraiserService struct {
	fundraisers   FundraiserRepository
	organizations OrganizationRepository
	processor     ProcessorClient
	audit         *AuditService
}

func NewFundraiserService(
	fundraisers FundraiserRepository,
	organizations OrganizationRepository,
	processor ProcessorClient,
	audit *AuditService,
) *FundraiserService {
	return &FundraiserService{
		fundraisers:   fundraisers,
		organizations: organizations,
		processor:     processor,
		audit:         audit,
	}
}

// CreateFundraiserInput is an owner's request to open a fundraiser.
type CreateFundraiserInput struct {
	Title         string
	Description   string
	PlanCode      string
	CoverImageURL *string
}

// Create opens a fundraiser under the given plan. Free plans go ACTIVE
// immediately; paid plans start DRAFT and activate when the opening fee is
// paid. The plan's ceiling and kind are denormalized onto the row so donation
// and withdrawal checks never need a registry lookup in SQL.
func (s *FundraiserService) Create(ctx context.Context, ownerID uuid.UUID, in CreateFundraiserInput) (*models.Fundraiser, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "title is required")
	}

	plan, err := plans.PlanFor(in.PlanCode)
	if err != nil {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "unknown plan %q", in.PlanCode)
	}

	var orgID *uuid.UUID
	if plan.Kind == models.FundraiserKindAssociation {
		org, err := s.organizations.GetByOwner(ctx, ownerID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return nil, apperror.New(apperror.ErrCodeValidation, "an organization is required for association plans")
			}
			return nil, err
		}
		orgID = &org.ID
	}

	status := models.FundraiserStatusDraft
	feePaid := false
	if plan.Free() {
		status = models.FundraiserStatusActive
		feePaid = true
	}

	var maxAmount *int64
	if !plan.Ceiling.Unbounded {
		ceiling := plan.Ceiling.Amount
		maxAmount = &ceiling
	}

	f := &models.Fundraiser{
		OwnerUserID:    ownerID,
		OrganizationID: orgID,
		Kind:           plan.Kind,
		Title:          in.Title,
		Slug:           slugify(in.Title) + "-" + uuid.NewString()[:8],
		Description:    in.Description,
		Currency:       "eur",
		PlanCode:       plan.Code,
		MaxAmount:      maxAmount,
		Status:         status,
		OpeningFeePaid: feePaid,
		CoverImageURL:  in.CoverImageURL,
	}
	if err := s.fundraisers.Create(ctx, f); err != nil {
		return nil, err
	}

	s.audit.Record(&ownerID, "fundraiser.created", "fundraiser", f.ID.String(), map[string]interface{}{
		"plan_code": plan.Code,
		"status":    status,
	})
	return f, nil
}

// PlanCheckout builds the opening-fee checkout session for a DRAFT
// fundraiser on a paid plan.
func (s *FundraiserService) PlanCheckout(ctx context.Context, ownerID, fundraiserID uuid.UUID) (*CheckoutResult, error) {
	f, err := s.ownedFundraiser(ctx, ownerID, fundraiserID)
	if err != nil {
		return nil, err
	}
	if f.Status != models.FundraiserStatusDraft || f.OpeningFeePaid {
		return nil, apperror.New(apperror.ErrCodeValidation, "opening fee is not due for this fundraiser")
	}

	plan, err := plans.PlanFor(f.PlanCode)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeInternal, "fundraiser carries an unknown plan")
	}
	if !plan.Purchasable() {
		return nil, apperror.Newf(apperror.ErrCodeValidation, "plan %s has no self-service opening fee", plan.Code)
	}

	session, err := s.processor.CreatePlanCheckout(ctx, f.ID, plan.Name, plan.Price, ownerID)
	if err != nil {
		return nil, err
	}

	s.audit.Record(&ownerID, "fundraiser.plan_checkout_created", "fundraiser", f.ID.String(), map[string]interface{}{
		"plan_code": plan.Code,
		"price":     plan.Price,
	})
	return &CheckoutResult{DonationID: uuid.Nil, SessionID: session.SessionID, URL: session.URL}, nil
}

// ActivateFromPlanPayment flips a DRAFT fundraiser to ACTIVE once the
// opening fee has been paid. Idempotent under webhook retries.
func (s *FundraiserService) ActivateFromPlanPayment(ctx context.Context, fundraiserID uuid.UUID) error {
	activated, err := s.fundraisers.MarkOpeningFeePaid(ctx, fundraiserID)
	if err != nil {
		return err
	}
	if activated {
		s.audit.Record(nil, "fundraiser.activated", "fundraiser", fundraiserID.String(), nil)
	}
	return nil
}

// Pause suspends donations on an ACTIVE fundraiser.
func (s *FundraiserService) Pause(ctx context.Context, ownerID, fundraiserID uuid.UUID) error {
	return s.ownerTransition(ctx, ownerID, fundraiserID,
		models.FundraiserStatusActive, models.FundraiserStatusPaused, "fundraiser.paused")
}

// Resume reopens a PAUSED fundraiser.
func (s *FundraiserService) Resume(ctx context.Context, ownerID, fundraiserID uuid.UUID) error {
	return s.ownerTransition(ctx, ownerID, fundraiserID,
		models.FundraiserStatusPaused, models.FundraiserStatusActive, "fundraiser.resumed")
}

// Close ends an ACTIVE fundraiser permanently. Collected funds stay
// withdrawable.
func (s *FundraiserService) Close(ctx context.Context, ownerID, fundraiserID uuid.UUID) error {
	return s.ownerTransition(ctx, ownerID, fundraiserID,
		models.FundraiserStatusActive, models.FundraiserStatusClosed, "fundraiser.closed")
}

func (s *FundraiserService) ownerTransition(ctx context.Context, ownerID, fundraiserID uuid.UUID, from, to, action string) error {
	if _, err := s.ownedFundraiser(ctx, ownerID, fundraiserID); err != nil {
		return err
	}

	changed, err := s.fundraisers.UpdateStatus(ctx, fundraiserID, from, to)
	if err != nil {
		return err
	}
	if !changed {
		return apperror.Newf(apperror.ErrCodeValidation, "fundraiser is not %s", from)
	}

	s.audit.Record(&ownerID, action, "fundraiser", fundraiserID.String(), nil)
	return nil
}

func (s *FundraiserService) ownedFundraiser(ctx context.Context, ownerID, fundraiserID uuid.UUID) (*models.Fundraiser, error) {
	f, err := s.fundraisers.GetByID(ctx, fundraiserID)
	if err != nil {
		return nil, err
	}
	if f.OwnerUserID != ownerID {
		return nil, apperror.New(apperror.ErrCodeForbidden, "fundraiser belongs to another user")
	}
	return f, nil
}

// GetBySlug returns a fundraiser for its public page.
func (s *FundraiserService) GetBySlug(ctx context.Context, slug string) (*models.Fundraiser, error) {
	return s.fundraisers.GetBySlug(ctx, slug)
}

// GetOwned returns a fundraiser for its owner's dashboard.
func (s *FundraiserService) GetOwned(ctx context.Context, ownerID, fundraiserID uuid.UUID) (*models.Fundraiser, error) {
	return s.ownedFundraiser(ctx, ownerID, fundraiserID)
}

// ListByOwner returns the caller's fundraisers.
func (s *FundraiserService) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]models.Fundraiser, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.fundraisers.ListByOwner(ctx, ownerID, limit, offset)
}

// slugify lowercases the title, strips accents to ASCII where trivially
// possible and collapses everything else to hyphens.
func slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == 'é' || r == 'è' || r == 'ê' || r == 'ë':
			b.WriteRune('e')
			lastHyphen = false
		case r == 'à' || r == 'â':
			b.WriteRune('a')
			lastHyphen = false
		case r == 'ù' || r == 'û':
			b.WriteRune('u')
			lastHyphen = false
		case r == 'ô':
			b.WriteRune('o')
			lastHyphen = false
		case r == 'î' || r == 'ï':
			b.WriteRune('i')
			lastHyphen = false
		case r == 'ç':
			b.WriteRune('c')
			lastHyphen = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '\'':
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "cagnotte"
	}
	if len(slug) > 60 {
		slug = strings.Trim(slug[:60], "-")
	}
	return slug
}
