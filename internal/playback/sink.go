package playback

// Sink is a streaming decode/playback sink. It accepts one append at a
// time; OnIdle registers the notification fired each time an in-flight
// append completes and the sink is ready for the next one.
type Sink interface {
	Append(segment []byte) error
	Busy() bool
	Finalize() error
	OnIdle(fn func())
}
