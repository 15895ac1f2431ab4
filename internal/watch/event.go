package watch

import (
	"github.com/google/uuid"

	"jobrunner/pkg/cloudevent"
)

// newEvent builds a job lifecycle CloudEvent. The subject is the job ID and
// the event ID is a fresh UUID so redeliveries stay distinguishable.
func newEvent(eventType, source, subject string, data map[string]any) *cloudevent.CloudEvent {
	return cloudevent.New(eventType, source, subject, uuid.NewString(), data)
}
