//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit"
	"github.com/niksbanna/ehr-portal-sub000/pkg/testutil/containers"
)

func TestSink_Integration(t *testing.T) {
	rp := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient([]string{rp.Broker})
	require.NoError(t, err)
	defer client.Close()

	const topic = "ehr.audit.records.test"
	require.NoError(t, EnsureTopic(ctx, client, topic, 1, 1))
	require.NoError(t, EnsureTopic(ctx, client, topic, 1, 1), "second call tolerates an existing topic")

	record := audit.Record{
		ID:         "rec-1",
		Action:     audit.ActionUpdate,
		EntityType: "Patients",
		EntityID:   audit.StringPtr("42"),
		Outcome:    audit.OutcomeSuccess,
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, New(client, topic).Append(ctx, record))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.NoError(t, fetches.Err())
	got := fetches.Records()
	require.Len(t, got, 1)
	assert.Equal(t, "Patients", string(got[0].Key))

	var decoded audit.Record
	require.NoError(t, json.Unmarshal(got[0].Value, &decoded))
	assert.Equal(t, "rec-1", decoded.ID)
	assert.Equal(t, audit.ActionUpdate, decoded.Action)
	assert.Equal(t, "42", *decoded.EntityID)
}
