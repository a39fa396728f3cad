package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestJob(t *testing.T) {
	a := NewIngestJob("HOA123", "Bylaws", "HOA123/docs/bylaws.pdf")
	b := NewIngestJob("HOA123", "Bylaws", "HOA123/docs/bylaws.pdf")

	assert.NotEmpty(t, a.JobID)
	assert.NotEqual(t, a.JobID, b.JobID)
	assert.False(t, a.RequestedAt.IsZero())
}

func TestParseIngestJob(t *testing.T) {
	job, err := ParseIngestJob([]byte(`{"job_id":"j1","hoa_code":"HOA1","document_type":"Pool","storage_key":"HOA1/docs/pool.pdf"}`))
	require.NoError(t, err)
	assert.Equal(t, "HOA1", job.TenantID)
	assert.Equal(t, "Pool", job.DocumentType)

	_, err = ParseIngestJob([]byte(`{not json`))
	assert.Error(t, err)

	_, err = ParseIngestJob([]byte(`{"job_id":"j1","hoa_code":"HOA1"}`))
	assert.Error(t, err)
}

func TestProducer_PublishIngestJob(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	job := NewIngestJob("HOA123", "Bylaws", "HOA123/docs/bylaws.pdf")

	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got IngestJob
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.JobID != job.JobID || got.StorageKey != job.StorageKey {
			return errors.New("unexpected payload")
		}
		return nil
	})

	producer := NewProducerFromClient(mock, "document-ingest", nil)
	require.NoError(t, producer.PublishIngestJob(job))
	require.NoError(t, producer.Close())
}

func TestProducer_PublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	producer := NewProducerFromClient(mock, "document-ingest", nil)
	err := producer.PublishIngestJob(NewIngestJob("HOA1", "Pool", "HOA1/docs/pool.pdf"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestProducer_Nil(t *testing.T) {
	var producer *Producer
	assert.Error(t, producer.PublishIngestJob(IngestJob{}))
	assert.NoError(t, producer.Close())
}

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

func TestDispatch_MarksOnlyHandledMessages(t *testing.T) {
	c := newConsumer(nil, "neighbr-ingest", []string{"document-ingest"}, nil)
	c.RegisterHandler("document-ingest", func(_ context.Context, m *sarama.ConsumerMessage) error {
		if string(m.Value) == "bad" {
			return errors.New("index down")
		}
		return nil
	})

	session := &fakeSession{ctx: context.Background()}
	h := &consumerGroupHandler{consumer: c}

	h.dispatch(session, &sarama.ConsumerMessage{Topic: "document-ingest", Offset: 1, Value: []byte("ok")})
	h.dispatch(session, &sarama.ConsumerMessage{Topic: "document-ingest", Offset: 2, Value: []byte("bad")})
	h.dispatch(session, &sarama.ConsumerMessage{Topic: "unknown", Offset: 3})

	assert.Equal(t, []int64{1, 3}, session.marked)
}
