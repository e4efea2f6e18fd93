package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bcgov/sbc-pay-sub002/internal/bus"
)

type fakeSubscriber struct {
	payload bus.FileUploadedPayload
}

func (f *fakeSubscriber) Poll(ctx context.Context, batch int, handle bus.FileEventHandler) error {
	return handle(ctx, f.payload)
}

func TestFileEventRouterRejectsUnknownFileType(t *testing.T) {
	sub := &fakeSubscriber{payload: bus.FileUploadedPayload{FileType: "BOGUS", FileName: "x.txt", Location: "loc"}}
	router := NewFileEventRouter(newTestTaskContext(), sub)

	err := sub.Poll(context.Background(), 1, router.handle)
	require.Error(t, err)
}
