package aimsg

import (
	"errors"
	"testing"
)

type recordingHandler struct {
	got []Kind
}

func (h *recordingHandler) FirstActivities(_ Context, m FirstActivities) error {
	h.got = append(h.got, m.Kind())
	return nil
}

func (h *recordingHandler) PhaseFinished(_ Context, m PhaseFinished) error {
	h.got = append(h.got, m.Kind())
	return nil
}

func (h *recordingHandler) CityChanged(_ Context, m CityChanged) error {
	h.got = append(h.got, m.Kind())
	return errors.New("city gone")
}

type nopContext struct{ replies []Request }

func (c *nopContext) Player() PlayerID { return 3 }
func (c *nopContext) Reply(r Request)  { c.replies = append(c.replies, r) }

func TestDispatchRoutesByKind(t *testing.T) {
	h := &recordingHandler{}
	ctx := &nopContext{}

	if err := Dispatch(ctx, h, FirstActivities{Turn: 1}); err != nil {
		t.Fatalf("FirstActivities: %v", err)
	}
	if err := Dispatch(ctx, h, PhaseFinished{Turn: 1, Phase: 0}); err != nil {
		t.Fatalf("PhaseFinished: %v", err)
	}
	if err := Dispatch(ctx, h, CityChanged{CityID: 9}); err == nil {
		t.Fatalf("CityChanged handler error not returned")
	}

	want := []Kind{KindFirstActivities, KindPhaseFinished, KindCityChanged}
	if len(h.got) != len(want) {
		t.Fatalf("got=%v want=%v", h.got, want)
	}
	for i := range want {
		if h.got[i] != want[i] {
			t.Fatalf("got[%d]=%v want=%v", i, h.got[i], want[i])
		}
	}
}

func TestDispatchExitIsRejected(t *testing.T) {
	h := &recordingHandler{}
	if err := Dispatch(&nopContext{}, h, Exit{}); !errors.Is(err, ErrExitDispatched) {
		t.Fatalf("err=%v want ErrExitDispatched", err)
	}
	if len(h.got) != 0 {
		t.Fatalf("handler saw exit: %v", h.got)
	}
}

type countingPayload struct{ released *int }

func (p countingPayload) Release() { *p.released++ }

func TestReleaseRunsPayloadReleaser(t *testing.T) {
	n := 0
	Release(FirstActivities{Data: countingPayload{&n}})
	Release(PhaseFinished{Data: countingPayload{&n}})
	Release(CityChanged{Data: "not a releaser"})
	Release(Exit{})
	ReleaseEnvelope(&Envelope[Message]{Msg: CityChanged{Data: countingPayload{&n}}})
	ReleaseEnvelope(nil)
	if n != 3 {
		t.Fatalf("released=%d want 3", n)
	}
}

func TestHandlerFuncsDefaults(t *testing.T) {
	var turns []int
	h := HandlerFuncs{
		OnFirstActivities: func(_ Context, m FirstActivities) error {
			turns = append(turns, m.Turn)
			return nil
		},
	}
	ctx := &nopContext{}
	for _, m := range []Message{FirstActivities{Turn: 4}, PhaseFinished{}, CityChanged{}} {
		if err := Dispatch(ctx, h, m); err != nil {
			t.Fatalf("Dispatch(%v): %v", m.Kind(), err)
		}
	}
	if len(turns) != 1 || turns[0] != 4 {
		t.Fatalf("turns=%v", turns)
	}
}

type requestRecorder struct {
	tasks []WorkerTask
	done  []TurnDone
}

func (r *requestRecorder) WorkerTask(_ PlayerID, w WorkerTask) error {
	r.tasks = append(r.tasks, w)
	return nil
}

func (r *requestRecorder) TurnDone(_ PlayerID, d TurnDone) error {
	r.done = append(r.done, d)
	return nil
}

func TestDispatchRequest(t *testing.T) {
	rec := &requestRecorder{}
	task := WorkerTask{CityID: 2, Task: Task{Tile: 5, Activity: ActivityMine, Want: 300}}
	if err := DispatchRequest(1, rec, task); err != nil {
		t.Fatal(err)
	}
	if err := DispatchRequest(1, rec, TurnDone{Turn: 8}); err != nil {
		t.Fatal(err)
	}
	if len(rec.tasks) != 1 || rec.tasks[0] != task {
		t.Fatalf("tasks=%v", rec.tasks)
	}
	if len(rec.done) != 1 || rec.done[0].Turn != 8 {
		t.Fatalf("done=%v", rec.done)
	}
}

func TestStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{KindFirstActivities.String(), "first_activities"},
		{KindExit.String(), "exit"},
		{Kind(99).String(), "kind(99)"},
		{ReqWorkerTask.String(), "worker_task"},
		{ActivityTransform.String(), "transform"},
		{Activity(-1).String(), "activity(-1)"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("got=%q want=%q", tt.got, tt.want)
		}
	}
}
