package delivery

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/caretrail/journey/pkg/channels/gochannel"
	"github.com/caretrail/journey/pkg/dispatch"
	"github.com/caretrail/journey/pkg/eventbus"
	"github.com/caretrail/journey/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logBuffer makes the delivery log observable from the test while the bus
// goroutine writes to it concurrently.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestConsumer_DeliversQueuedMessages(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	out := &logBuffer{}
	consumer := NewConsumer(bus, slog.New(slog.NewTextHandler(out, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, consumer.Start(ctx))

	dispatcher := dispatch.NewEventBusDispatcher(bus)
	require.NoError(t, dispatcher.Send(ctx, dispatch.Message{
		RunID:     "r1",
		JourneyID: "j1",
		NodeID:    "m1",
		Body:      "Time for your checkup",
		Patient:   models.PatientContext{"id": "p1"},
	}))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Sent message to patient")
	}, 2*time.Second, 10*time.Millisecond)

	logged := out.String()
	assert.Contains(t, logged, "run_id=r1")
	assert.Contains(t, logged, "patient_id=p1")
	assert.Contains(t, logged, "node_id=m1")
}

func TestConsumer_RejectsUnexpectedPayload(t *testing.T) {
	t.Parallel()

	consumer := NewConsumer(nil, slog.Default())

	err := consumer.handleMessageQueued(context.Background(), "not an event")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected event payload")
}
