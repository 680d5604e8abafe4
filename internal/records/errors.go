package records

import "errors"

var (
	// ErrMissingPatientName is returned when the patient name is blank
	ErrMissingPatientName = errors.New("patient name is required")

	// ErrMissingFolderNumber is returned when the folder number is blank
	ErrMissingFolderNumber = errors.New("folder number is required")

	// ErrInvalidReviewDate is returned when the review date is not YYYY-MM-DD
	ErrInvalidReviewDate = errors.New("review date must be YYYY-MM-DD")

	// ErrMissingHospital is returned when the hospital name is blank
	ErrMissingHospital = errors.New("hospital name is required")

	// ErrMissingServiceType is returned when the service type is blank
	ErrMissingServiceType = errors.New("service type is required")

	// ErrNegativeFee is returned when the fee is below zero
	ErrNegativeFee = errors.New("fee must not be negative")

	// ErrRecordNotFound is returned when a record id does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrDuplicateRecord is returned when a record id is already taken
	ErrDuplicateRecord = errors.New("record id already exists")
)

var validationErrors = []error{
	ErrMissingPatientName,
	ErrMissingFolderNumber,
	ErrInvalidReviewDate,
	ErrMissingHospital,
	ErrMissingServiceType,
	ErrNegativeFee,
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
