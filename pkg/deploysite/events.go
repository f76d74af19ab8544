package deploysite

type EventType string

const (
	EventFunctionsManifest EventType = "functions-manifest"
	EventHashing           EventType = "hashing"
	EventCreateDeploy      EventType = "create-deploy"
	EventUpload            EventType = "upload"
	EventWaitForDeploy     EventType = "wait-for-deploy"
)

type Phase string

const (
	PhaseStart    Phase = "start"
	PhaseProgress Phase = "progress"
	PhaseStop     Phase = "stop"
	PhaseError    Phase = "error"
)

// Event reports progress of a pipeline stage.
// Events from concurrent workers arrive in no particular order.
type Event struct {
	Type    EventType
	Message string
	Phase   Phase
}

type Observer interface {
	OnEvent(event Event)
}

type ObserverFunc func(event Event)

func (f ObserverFunc) OnEvent(event Event) {
	f(event)
}

// Discard drops all events.
var Discard Observer = ObserverFunc(func(Event) {})
