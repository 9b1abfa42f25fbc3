package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/hazard-data-pipeline/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	rec := domain.HazardRecord{
		ID:          "flood-aabbccdd",
		Type:        domain.TypeFlood,
		Lat:         40.0,
		Lon:         -75.0,
		ObservedAt:  now.Add(-time.Hour),
		Severity:    domain.SeverityModerate,
		Sources:     []string{"river-feed"},
		ProcessedAt: now,
	}

	msg, err := serializeToMessage(rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("flood-aabbccdd"), msg.Key)
	assert.Contains(t, string(msg.Value), `"type":"flood"`)
	assert.Contains(t, string(msg.Value), `"sources":["river-feed"]`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "hazard_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("flood"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}
