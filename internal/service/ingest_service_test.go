// FILE: internal/service/ingest_service_test.go
package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/lrfluobida/agent-job-coach/internal/dto"
	"github.com/lrfluobida/agent-job-coach/internal/entity"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	payloads [][]byte
}

func (p *capturingPublisher) Publish(_ context.Context, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type fakeEvidenceRepo struct {
	deletedSources []string
	created        []*entity.EvidenceChunk
}

func (f *fakeEvidenceRepo) CreateBulk(_ context.Context, chunks []*entity.EvidenceChunk) error {
	f.created = append(f.created, chunks...)
	return nil
}

func (f *fakeEvidenceRepo) FindByIds(_ context.Context, _ []string) ([]*entity.EvidenceChunk, error) {
	return nil, nil
}

func (f *fakeEvidenceRepo) SearchSimilar(_ context.Context, _ []float32, _ int, _ contract.EvidenceFilter) ([]*entity.ScoredEvidenceChunk, error) {
	return nil, nil
}

func (f *fakeEvidenceRepo) DeleteBySourceId(_ context.Context, sourceID string) error {
	f.deletedSources = append(f.deletedSources, sourceID)
	return nil
}

func (f *fakeEvidenceRepo) ListSources(_ context.Context) ([]*entity.SourceSummary, error) {
	return nil, nil
}

func (f *fakeEvidenceRepo) Count(_ context.Context) (int64, error) { return 0, nil }

const qaNoteFixture = `# 面试题库

## 一、Java 基础

### 1）HashMap 的底层实现是什么？
**答案：**
- 数组加链表
- 红黑树优化

### 2）== 和 equals 的区别？
**答案：**
- == 比较引用
- equals 比较内容
`

func TestIngestTextParsesNoteIntoQACards(t *testing.T) {
	repo := &fakeEvidenceRepo{}
	pub := &capturingPublisher{}
	svc := NewIngestService(repo, pub, 800, 80, logger.NoopLogger{})

	count, err := svc.IngestText(context.Background(), qaNoteFixture, "note", "note_java")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{"note_java"}, repo.deletedSources)

	require.Len(t, pub.payloads, 1)
	var job dto.PublishEmbedEvidenceMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &job))
	assert.Equal(t, "note_java", job.SourceId)
	require.Len(t, job.Chunks, 2)
	for _, chunk := range job.Chunks {
		assert.Equal(t, "qa_card", chunk.DocKind)
		assert.True(t, strings.HasPrefix(chunk.Id, "qa_note_java_"))
		assert.Contains(t, chunk.Text, "Question:")
		assert.Equal(t, "note", chunk.Metadata["source_type"])
	}
}

func TestIngestTextSplitsPlainResume(t *testing.T) {
	repo := &fakeEvidenceRepo{}
	pub := &capturingPublisher{}
	svc := NewIngestService(repo, pub, 20, 5, logger.NoopLogger{})

	text := strings.Repeat("工作经历：负责核心交易系统。", 10)
	count, err := svc.IngestText(context.Background(), text, "resume", "resume_1")
	require.NoError(t, err)
	require.Greater(t, count, 1)

	var job dto.PublishEmbedEvidenceMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &job))
	assert.Equal(t, "resume_1:0", job.Chunks[0].Id)
	assert.Equal(t, "text", job.Chunks[0].DocKind)
	assert.Equal(t, 0, int(job.Chunks[0].Metadata["chunk_index"].(float64)))
}

func TestIngestTextRejectsEmptyInput(t *testing.T) {
	svc := NewIngestService(&fakeEvidenceRepo{}, &capturingPublisher{}, 800, 80, logger.NoopLogger{})

	_, err := svc.IngestText(context.Background(), "   ", "note", "n1")
	assert.Error(t, err)

	_, err = svc.IngestText(context.Background(), "text", "note", "  ")
	assert.Error(t, err)
}
