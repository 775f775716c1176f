package domain

// Monitoring defines an interface for collecting, storing, and retrieving the history of submission attempts.
//
// Implementations of this interface can persist attempts in various ways, such as:
// - In-memory storage for tests and one-off runs.
// - A local SQLite database for an audit trail across restarts.
type Monitoring interface {
	// SaveMetrics stores one finished attempt.
	//
	// Parameters:
	//   - dto: AttemptDTO describing who was used, with which asset, and how it ended.
	SaveMetrics(dto AttemptDTO)

	// GetMetrics returns stored attempts, oldest first.
	GetMetrics() []AttemptDTO
}
