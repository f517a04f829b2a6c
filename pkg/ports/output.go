package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// OutputMessage is the content of a "say" instruction.
type OutputMessage struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// OutputRequest is what every OutputProcessor receives.
type OutputRequest struct {
	ConversationID string            `json:"conversationId"`
	Message        OutputMessage     `json:"message"`
	State          *domain.StateView `json:"state"`
	OriginalEvent  domain.Event      `json:"originalEvent"`
	FlowContext    *domain.Context   `json:"flowContext"`
}

// OutputProcessor delivers dispatched content (e.g. to a channel or a terminal).
type OutputProcessor interface {
	ID() string
	Send(ctx context.Context, req OutputRequest) error
}
