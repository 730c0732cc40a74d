package services

import "errors"

var (
	// ErrPromotionRepositoryMissing indicates the promotion repository dependency is absent.
	ErrPromotionRepositoryMissing = errors.New("promotion: repository is not configured")
	// ErrPromotionInvalidInput signals malformed promotion data on admin writes.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
	// ErrPromotionNotFound indicates no promotion exists for the provided id.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrPromotionCodeTaken indicates another promotion already owns the code.
	ErrPromotionCodeTaken = errors.New("promotion: code already in use")

	// ErrInvalidPromotion indicates the redemption code does not resolve to any promotion.
	ErrInvalidPromotion = errors.New("promotion: invalid code")
	// ErrPromotionNotActive indicates the promotion is inactive or outside its validity window.
	ErrPromotionNotActive = errors.New("promotion: not active")
	// ErrPromotionWrongType indicates the promotion cannot be redeemed at checkout.
	ErrPromotionWrongType = errors.New("promotion: not a discount promotion")
	// ErrPromotionNotApplicable indicates no cart line belongs to the promotion's product set.
	ErrPromotionNotApplicable = errors.New("promotion: not applicable to cart")
)
