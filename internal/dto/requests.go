package dto

// RegisterRequest is the sign-up form.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// LoginRequest carries login credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest rotates a token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// CreateFundraiserRequest opens a fundraiser.
type CreateFundraiserRequest struct {
	Title         string  `json:"title" binding:"required"`
	Description   string  `json:"description"`
	PlanCode      string  `json:"plan_code" binding:"required"`
	CoverImageURL *string `json:"cover_image_url"`
}

// CreateDonationRequest starts a donation checkout. Amounts are in cents.
type CreateDonationRequest struct {
	Amount       int64   `json:"amount" binding:"required,gt=0"`
	TipAmount    int64   `json:"tip_amount"`
	DonorName    string  `json:"donor_name"`
	DonorEmail   string  `json:"donor_email" binding:"required,email"`
	DonorMessage *string `json:"donor_message"`
	DonorAddress *string `json:"donor_address"`
	IsAnonymous  bool    `json:"is_anonymous"`
	WantsReceipt bool    `json:"wants_receipt"`
}

// CreateWithdrawalRequest requests a payout, amount in cents.
type CreateWithdrawalRequest struct {
	FundraiserID string `json:"fundraiser_id" binding:"required,uuid"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

// CreateOrganizationRequest registers a legal entity.
type CreateOrganizationRequest struct {
	LegalName     string  `json:"legal_name" binding:"required"`
	Email         string  `json:"email" binding:"required,email"`
	Siret         *string `json:"siret"`
	IsTaxEligible bool    `json:"is_tax_eligible"`
}
