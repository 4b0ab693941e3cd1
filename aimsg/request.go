package aimsg

import "fmt"

// RequestKind tags a request from a worker to the game thread.
type RequestKind int

const (
	ReqWorkerTask RequestKind = iota + 1
	ReqTurnDone
)

func (k RequestKind) String() string {
	switch k {
	case ReqWorkerTask:
		return "worker_task"
	case ReqTurnDone:
		return "turn_done"
	default:
		return fmt.Sprintf("request(%d)", int(k))
	}
}

// Request is produced by an AI worker and applied on the game thread.
type Request interface {
	RequestKind() RequestKind
	request()
}

// Activity is a terrain improvement a worker unit can carry out.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityIrrigate
	ActivityMine
	ActivityRoad
	ActivityTransform
)

var activityNames = [...]string{"idle", "irrigate", "mine", "road", "transform"}

func (a Activity) String() string {
	if a >= 0 && int(a) < len(activityNames) {
		return activityNames[a]
	}
	return fmt.Sprintf("activity(%d)", int(a))
}

// Task is one improvement the AI wants done on a city tile.
type Task struct {
	Tile     int
	Activity Activity
	Want     int
}

// WorkerTask asks the game to record Task as the city's wanted work. The
// city may have changed hands by the time the game thread sees it.
type WorkerTask struct {
	CityID int
	Task   Task
}

// TurnDone reports that the AI finished its work for Turn.
type TurnDone struct {
	Turn int
}

func (WorkerTask) RequestKind() RequestKind { return ReqWorkerTask }
func (TurnDone) RequestKind() RequestKind   { return ReqTurnDone }

func (WorkerTask) request() {}
func (TurnDone) request()   {}

// RequestHandler applies worker requests on the game thread.
type RequestHandler interface {
	WorkerTask(player PlayerID, r WorkerTask) error
	TurnDone(player PlayerID, r TurnDone) error
}

// DispatchRequest routes r to the matching RequestHandler method.
func DispatchRequest(player PlayerID, h RequestHandler, r Request) error {
	switch r := r.(type) {
	case WorkerTask:
		return h.WorkerTask(player, r)
	case TurnDone:
		return h.TurnDone(player, r)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownRequest, r)
	}
}
