package chat

import (
	"context"
	"errors"

	"procsight/pkg/apperr"
	"procsight/pkg/kv"
	"procsight/pkg/llm/gemini"
	"procsight/pkg/session"
)

// Backend is the model path a controller sends prompts through.
type Backend interface {
	Name() string
	// Ensure makes the backend usable before a turn, acquiring a session if needed.
	Ensure(ctx context.Context) error
	Generate(ctx context.Context, prompt string) (string, error)
	// Recover re-runs acquisition after a session-related failure.
	Recover(ctx context.Context) error
	Close(ctx context.Context)
}

// LocalBackend routes prompts through the session manager.
type LocalBackend struct {
	manager *session.Manager
}

var _ Backend = &LocalBackend{}

func NewLocalBackend(manager *session.Manager) *LocalBackend {
	return &LocalBackend{manager: manager}
}

func (b *LocalBackend) Name() string { return "local" }

func (b *LocalBackend) Ensure(ctx context.Context) error {
	return b.manager.Ensure(ctx)
}

func (b *LocalBackend) Generate(ctx context.Context, prompt string) (string, error) {
	return b.manager.Prompt(ctx, prompt)
}

func (b *LocalBackend) Recover(ctx context.Context) error {
	return b.manager.Acquire(ctx)
}

func (b *LocalBackend) Close(ctx context.Context) {
	b.manager.Close(ctx)
}

// RemoteBackend sends each prompt to the remote endpoint. It holds no session.
type RemoteBackend struct {
	client *gemini.Client
	model  string
	apiKey string
	store  kv.Store
}

var _ Backend = &RemoteBackend{}

// NewRemoteBackend uses apiKey when set, otherwise the credential token
// persisted under kv.KeyTrialToken.
func NewRemoteBackend(client *gemini.Client, model, apiKey string, store kv.Store) *RemoteBackend {
	return &RemoteBackend{
		client: client,
		model:  model,
		apiKey: apiKey,
		store:  store,
	}
}

func (b *RemoteBackend) Name() string { return "remote" }

func (b *RemoteBackend) Ensure(ctx context.Context) error { return nil }

func (b *RemoteBackend) Generate(ctx context.Context, prompt string) (string, error) {
	credential, err := b.credential(ctx)
	if err != nil {
		return "", err
	}
	return b.client.Generate(ctx, prompt, credential, b.model)
}

func (b *RemoteBackend) credential(ctx context.Context) (string, error) {
	if b.apiKey != "" {
		return b.apiKey, nil
	}
	if b.store == nil {
		return "", apperr.RemoteAPI("chat.credential", 0, "missing credential", nil)
	}
	token, found, err := b.store.Get(ctx, kv.KeyTrialToken)
	if err != nil {
		return "", apperr.Storage("chat.credential", err)
	}
	if !found || token == "" {
		return "", apperr.RemoteAPI("chat.credential", 0, "missing credential", errors.New("no credential token stored"))
	}
	return token, nil
}

func (b *RemoteBackend) Recover(ctx context.Context) error { return nil }

func (b *RemoteBackend) Close(ctx context.Context) {}
