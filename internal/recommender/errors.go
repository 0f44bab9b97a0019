package recommender

import "errors"

var (
	// ErrNoTrainingData means no positive examples could be built. Runs
	// hitting it exit cleanly with zero writes.
	ErrNoTrainingData = errors.New("no training data")
	// ErrNoEvents means the events table is empty.
	ErrNoEvents = errors.New("no events")
	// ErrNoStudents means no student users matched the run scope.
	ErrNoStudents = errors.New("no student users")
	// ErrNoModel means skip-training was requested but no persisted
	// model exists yet.
	ErrNoModel = errors.New("no persisted recommender model")
	// ErrSchemaMismatch means a persisted model's feature names no longer
	// match the fixed vector schema. Callers must not retry.
	ErrSchemaMismatch = errors.New("model feature schema mismatch")
)

// CleanExit reports whether err is a no-data condition rather than a
// failure.
func CleanExit(err error) bool {
	return errors.Is(err, ErrNoTrainingData) ||
		errors.Is(err, ErrNoEvents) ||
		errors.Is(err, ErrNoStudents) ||
		errors.Is(err, ErrNoModel)
}
