package implementation

import (
	"context"

	"github.com/lrfluobida/agent-job-coach/internal/entity"
	"github.com/lrfluobida/agent-job-coach/internal/mapper"
	"github.com/lrfluobida/agent-job-coach/internal/model"
	"github.com/lrfluobida/agent-job-coach/internal/repository/contract"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

type EvidenceRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.EvidenceMapper
}

func NewEvidenceRepository(db *gorm.DB) contract.EvidenceRepository {
	return &EvidenceRepositoryImpl{
		db:     db,
		mapper: mapper.NewEvidenceMapper(),
	}
}

func (r *EvidenceRepositoryImpl) applyFilter(db *gorm.DB, filter contract.EvidenceFilter) *gorm.DB {
	if filter.SourceType != "" {
		db = db.Where("source_type = ?", filter.SourceType)
	}
	if filter.SourceId != "" {
		db = db.Where("source_id = ?", filter.SourceId)
	}
	if filter.DocKind != "" {
		db = db.Where("doc_kind = ?", filter.DocKind)
	}
	return db
}

func (r *EvidenceRepositoryImpl) CreateBulk(ctx context.Context, chunks []*entity.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]*model.EvidenceChunk, len(chunks))
	for i, c := range chunks {
		models[i] = r.mapper.ToModel(c)
	}
	return r.db.WithContext(ctx).CreateInBatches(models, 100).Error
}

func (r *EvidenceRepositoryImpl) FindByIds(ctx context.Context, ids []string) ([]*entity.EvidenceChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []*model.EvidenceChunk
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	entities := make([]*entity.EvidenceChunk, len(models))
	for i, m := range models {
		entities[i] = r.mapper.ToEntity(m)
	}
	return entities, nil
}

func (r *EvidenceRepositoryImpl) SearchSimilar(ctx context.Context, embedding []float32, limit int, filter contract.EvidenceFilter) ([]*entity.ScoredEvidenceChunk, error) {
	if limit <= 0 {
		limit = 5
	}

	// Cosine distance via pgvector: embedding <=> query. Lower is closer,
	// which is the score contract the retrieval layer exposes.
	type row struct {
		model.EvidenceChunk
		Distance float64
	}
	var rows []row

	queryVector := pgvector.NewVector(embedding)
	db := r.db.WithContext(ctx).
		Table("evidence_chunks").
		Select("evidence_chunks.*, embedding <=> ? AS distance", queryVector)
	db = r.applyFilter(db, filter)

	err := db.
		Order("distance ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	scored := make([]*entity.ScoredEvidenceChunk, len(rows))
	for i, res := range rows {
		scored[i] = &entity.ScoredEvidenceChunk{
			Chunk:    r.mapper.ToEntity(&res.EvidenceChunk),
			Distance: res.Distance,
		}
	}
	return scored, nil
}

func (r *EvidenceRepositoryImpl) DeleteBySourceId(ctx context.Context, sourceId string) error {
	return r.db.WithContext(ctx).Where("source_id = ?", sourceId).Delete(&model.EvidenceChunk{}).Error
}

func (r *EvidenceRepositoryImpl) ListSources(ctx context.Context) ([]*entity.SourceSummary, error) {
	type row struct {
		SourceId   string
		SourceType string
		ChunkCount int64
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("evidence_chunks").
		Select("source_id, source_type, COUNT(*) AS chunk_count").
		Group("source_id, source_type").
		Order("source_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*entity.SourceSummary, len(rows))
	for i, r := range rows {
		out[i] = &entity.SourceSummary{
			SourceId:   r.SourceId,
			SourceType: r.SourceType,
			ChunkCount: r.ChunkCount,
		}
	}
	return out, nil
}

func (r *EvidenceRepositoryImpl) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EvidenceChunk{}).Count(&count).Error
	return count, err
}
