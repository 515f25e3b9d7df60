package domain

import "github.com/smallbiznis/cariledger/pkg/apperror"

var (
	ErrInvalidOrganization    = apperror.Validation("invalid_organization", "organization scope is required")
	ErrInvalidID              = apperror.Validation("invalid_id", "id is malformed")
	ErrInvalidAmount          = apperror.Validation("invalid_amount", "amount must be greater than zero")
	ErrInvalidAmountPrecision = apperror.Validation("invalid_amount_precision", "amount supports at most four fractional digits")
	ErrInvalidCurrency        = apperror.Validation("unsupported_currency", "currency must be EUR, USD or TRY")
	ErrInvalidTransactionType = apperror.Validation("invalid_transaction_type", "transaction_type must be debit, credit, payment or refund")
	ErrInvalidSourceType      = apperror.Validation("invalid_source_type", "source_type is not recognized")
	ErrInvalidSourceID        = apperror.Validation("invalid_source_id", "source_id requires source_type")
	ErrInvalidDate            = apperror.Validation("invalid_date", "date must be formatted as YYYY-MM-DD")
	ErrInvalidDateRange       = apperror.Validation("invalid_date_range", "from must not be after to")
	ErrDescriptionTooLong     = apperror.Validation("description_too_long", "description exceeds 1000 characters")

	ErrTransactionNotFound = apperror.NotFound("transaction_not_found", "cari transaction not found")
	ErrAlreadyVoided       = apperror.Conflict("already_voided", "transaction is already voided")
	ErrVersionConflict     = apperror.Conflict("version_conflict", "account balance changed concurrently, retry the request")

	// ErrCorruptTransaction marks stored rows that cannot be replayed.
	ErrCorruptTransaction = apperror.New(apperror.KindStorage, "corrupt_transaction", "stored transaction cannot be replayed")
)

// MaxDescriptionLength bounds the free text stored with a transaction.
const MaxDescriptionLength = 1000

// MaxAmount is the largest amount that fits decimal(20,4).
const MaxAmount = "9999999999999999.9999"
