package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"loremaster/internal/llm"
	"loremaster/internal/orchestrator"
	"loremaster/internal/transcript"
)

type failingProvider struct{}

func (failingProvider) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return llm.Response{}, errors.New("provider down")
}

func (failingProvider) GenerateWithTools(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.Response, error) {
	return llm.Response{}, errors.New("provider down")
}

type stallingProvider struct {
	entered chan struct{}
	release chan struct{}
}

func (p *stallingProvider) Generate(ctx context.Context, msgs []llm.Message) (llm.Response, error) {
	return p.GenerateWithTools(ctx, msgs, nil)
}

func (p *stallingProvider) GenerateWithTools(ctx context.Context, _ []llm.Message, _ []llm.Tool) (llm.Response, error) {
	p.entered <- struct{}{}
	<-p.release
	return llm.Response{Content: "done"}, nil
}

func newBotOrchestrator(provider llm.Client) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		Provider: provider,
		Settings: llm.Settings{Provider: "openai", Model: "gpt-4o"},
	})
}

func TestSubmitAndWatchSeesFastFailure(t *testing.T) {
	// The provider errors as soon as the turn runs, so the terminal status
	// can land before any later-registered subscriber. The watcher must be
	// in place before the submission for the reply not to be lost.
	b := &Bot{orch: newBotOrchestrator(failingProvider{})}

	done, stop, err := b.submitAndWatch(context.Background(), "hello", orchestrator.SubmitOptions{})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	defer stop()

	select {
	case status := <-done:
		if status != transcript.ProgressFailed {
			t.Fatalf("expected failed status, got %s", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("terminal status never delivered")
	}
}

func TestSubmitAndWatchRejectsWhileInFlight(t *testing.T) {
	provider := &stallingProvider{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	b := &Bot{orch: newBotOrchestrator(provider)}

	done, stop, err := b.submitAndWatch(context.Background(), "first", orchestrator.SubmitOptions{})
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	defer stop()
	<-provider.entered

	if _, _, err := b.submitAndWatch(context.Background(), "second", orchestrator.SubmitOptions{}); !errors.Is(err, orchestrator.ErrTurnInFlight) {
		t.Fatalf("expected ErrTurnInFlight, got %v", err)
	}

	close(provider.release)
	select {
	case status := <-done:
		if status != transcript.ProgressCompleted {
			t.Fatalf("expected completed status, got %s", status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first turn never finished")
	}
}
