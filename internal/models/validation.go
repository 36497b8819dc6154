package models

// ValidationStatus classifies a validation subject
type ValidationStatus string

const (
	ValidationComplete   ValidationStatus = "complete"
	ValidationIncomplete ValidationStatus = "incomplete"
	ValidationMissing    ValidationStatus = "missing"
	ValidationNoData     ValidationStatus = "no-data"
	ValidationError      ValidationStatus = "error"
)

// Passed reports whether the status counts towards completeness
func (s ValidationStatus) Passed() bool {
	return s == ValidationComplete || s == ValidationNoData
}

// ValidationKind tells date results from entity results
type ValidationKind string

const (
	ValidationKindDate   ValidationKind = "date"
	ValidationKindEntity ValidationKind = "entity"
)

// ValidationResult compares stored and upstream counts for one date or entity.
// Results are report artifacts and are never written back to the store.
type ValidationResult struct {
	Kind            ValidationKind   `json:"kind"`
	SubjectKey      string           `json:"subjectKey"`
	SubjectName     string           `json:"subjectName,omitempty"`
	ExpectedCount   int              `json:"expectedCount"`
	ActualCount     int              `json:"actualCount"`
	ExpectedGames   int              `json:"expectedGames,omitempty"`
	ActualGames     int              `json:"actualGames,omitempty"`
	CompletenessPct float64          `json:"completenessPct"`
	Status          ValidationStatus `json:"status"`

	// Entity checks only
	ExpectedFirstDate string `json:"expectedFirstDate,omitempty"`
	ExpectedLastDate  string `json:"expectedLastDate,omitempty"`
	ActualFirstDate   string `json:"actualFirstDate,omitempty"`
	ActualLastDate    string `json:"actualLastDate,omitempty"`

	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
