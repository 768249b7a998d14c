package tasks

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestDispatcherBumpsGenerationPerSubject(t *testing.T) {
	enq := &fakeEnqueuer{}
	gens := NewMemoryGenerations()
	d := NewDispatcher(enq, gens, 3, nil)
	ctx := WithCorrelationID(context.Background(), "corr-1")

	for i := 0; i < 3; i++ {
		if err := d.RegenerateJob(ctx, 7); err != nil {
			t.Fatalf("RegenerateJob: %v", err)
		}
	}
	if err := d.RegenerateCandidate(ctx, 7); err != nil {
		t.Fatalf("RegenerateCandidate: %v", err)
	}

	if len(enq.tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(enq.tasks))
	}
	last, err := ParseRegeneratePayload(enq.tasks[2])
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if last.Kind != SubjectJob || last.SubjectID != 7 || last.Generation != 3 || last.CorrelationID != "corr-1" {
		t.Fatalf("unexpected payload: %+v", last)
	}
	cand, err := ParseRegeneratePayload(enq.tasks[3])
	if err != nil {
		t.Fatalf("parse candidate: %v", err)
	}
	if enq.tasks[3].Type() != TypeRecommendCandidate || cand.Generation != 1 {
		t.Fatalf("candidate generation should be independent: %+v", cand)
	}
}

func TestDispatcherRejectsMissingSubject(t *testing.T) {
	d := NewDispatcher(&fakeEnqueuer{}, NewMemoryGenerations(), 3, nil)
	if err := d.RegenerateJob(context.Background(), 0); err == nil {
		t.Fatalf("expected error for zero id")
	}
}

func TestRunSavedSearchIgnoresDuplicates(t *testing.T) {
	enq := &fakeEnqueuer{err: asynq.ErrDuplicateTask}
	d := NewDispatcher(enq, NewMemoryGenerations(), 3, nil)
	if err := d.RunSavedSearch(context.Background(), 5); err != nil {
		t.Fatalf("duplicate should be ignored, got %v", err)
	}
}

func TestParsePayloadValidation(t *testing.T) {
	bad, _ := json.Marshal(RegeneratePayload{Kind: SubjectJob})
	if _, err := ParseRegeneratePayload(asynq.NewTask(TypeRecommendJob, bad)); err == nil {
		t.Fatalf("expected error for missing subject id")
	}

	mismatch, _ := json.Marshal(RegeneratePayload{Kind: SubjectCandidate, SubjectID: 1})
	if _, err := ParseRegeneratePayload(asynq.NewTask(TypeRecommendJob, mismatch)); err == nil {
		t.Fatalf("expected error for kind/type mismatch")
	}

	if _, err := ParseSavedSearchPayload(asynq.NewTask(TypeSavedSearchRun, []byte(`{}`))); err == nil {
		t.Fatalf("expected error for missing search id")
	}
	task, err := NewSavedSearchTask(9, "c")
	if err != nil {
		t.Fatalf("NewSavedSearchTask: %v", err)
	}
	p, err := ParseSavedSearchPayload(task)
	if err != nil || p.SearchID != 9 {
		t.Fatalf("unexpected payload %+v err=%v", p, err)
	}
}

func TestMemoryGenerationsCompletedOnlyMovesForward(t *testing.T) {
	g := NewMemoryGenerations()
	ctx := context.Background()
	_ = g.MarkCompleted(ctx, SubjectJob, 1, 5)
	_ = g.MarkCompleted(ctx, SubjectJob, 1, 3)
	done, _ := g.Completed(ctx, SubjectJob, 1)
	if done != 5 {
		t.Fatalf("expected 5, got %d", done)
	}
}
