package amqp

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insights/internal/core"
)

type recordingAck struct {
	acked, nacked, requeued bool
}

func (r *recordingAck) Ack(bool) error {
	r.acked = true
	return nil
}

func (r *recordingAck) Nack(_ bool, requeue bool) error {
	r.nacked = true
	r.requeued = requeue
	return nil
}

func TestNewExportRequest(t *testing.T) {
	f := core.FilterSet{State: "Goa", Year: 2022}
	msg := NewExportRequest("top_pincodes", f)

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.Equal(t, "top_pincodes", msg.Report)
	assert.Equal(t, f, msg.Filters)
	assert.False(t, msg.RequestedAt.IsZero())

	body, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"filters":{"state":"Goa","year":2022}`)

	back, err := ExportRequestFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, back.ID)
	assert.Equal(t, f, back.Filters)
}

func TestExportRequestFromJSON_Rejects(t *testing.T) {
	id := uuid.New().String()
	bodies := map[string]string{
		"not json":    `{`,
		"missing id":  `{"report":"top_pincodes"}`,
		"no report":   `{"id":"` + id + `"}`,
		"bad quarter": `{"id":"` + id + `","report":"r","filters":{"quarter":9}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := ExportRequestFromJSON([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("no such column")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestSettleBody(t *testing.T) {
	body, err := NewExportRequest("brand_loyalty", core.FilterSet{}).ToJSON()
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   []byte
		result error
		ack    recordingAck
		called bool
	}{
		{"success acks", body, nil, recordingAck{acked: true}, true},
		{"permanent failure is dead-lettered", body, Permanent(errors.New("bad sql")), recordingAck{nacked: true}, true},
		{"transient failure requeues", body, errors.New("store down"), recordingAck{nacked: true, requeued: true}, true},
		{"bad body is rejected", []byte("{"), nil, recordingAck{nacked: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got recordingAck
			called := false
			settleBody(context.Background(), nil, tt.body, &got, func(context.Context, *ExportRequestMessage) error {
				called = true
				return tt.result
			})
			assert.Equal(t, tt.ack, got)
			assert.Equal(t, tt.called, called)
		})
	}
}

func TestTopologyNames(t *testing.T) {
	top := Topology{Exchange: "insights", Queue: "report_exports"}
	assert.Equal(t, "insights.dlx", top.deadLetterExchange())
	assert.Equal(t, "report_exports.failed", top.failedQueue())
}
