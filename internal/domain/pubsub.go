package domain

// RecordPublisher distributes novel records to whoever is listening at the time of the call.
// Publish must not block on slow consumers and returns the number of subscribers that
// accepted the record.
type RecordPublisher interface {
	Publish(record TrafficRecord) int
}
