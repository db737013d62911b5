package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/config"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/repository/implementation"
	"github.com/lrfluobida/agent-job-coach/internal/service"
	"github.com/lrfluobida/agent-job-coach/pkg/database"
	"github.com/lrfluobida/agent-job-coach/pkg/embedding"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/fatih/color"
)

// Seeds the evidence store with a QA-card note and a resume for local
// development. Runs the same ingest pipeline as the API, consumer included.
func main() {
	notePath := flag.String("note", "testdata/java_interview_notes.md", "QA-card markdown file")
	noteID := flag.String("note-id", "note_java_interview", "source id for the note")
	resumePath := flag.String("resume", "testdata/sample_resume.md", "resume text file")
	resumeID := flag.String("resume-id", "resume_demo", "source id for the resume")
	flag.Parse()

	cfg := config.Load()

	db, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Fatalf("Error: failed to connect to database: %v", err)
	}

	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(cfg.Ai.OllamaBaseURL, cfg.Ai.OllamaEmbedModel)
	} else {
		embeddingProvider = embedding.NewZhipuProvider(cfg.Ai.ZhipuAPIKey, cfg.Ai.ZhipuBaseURL, "")
	}

	evidenceRepo := implementation.NewEvidenceRepository(db)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
	sysLogger := logger.NoopLogger{}

	publisherService := service.NewPublisherService(pubSub, cfg.App.EmbedTopic)
	consumerService := service.NewConsumerService(pubSub, cfg.App.EmbedTopic, evidenceRepo, embeddingProvider, sysLogger)
	ingestService := service.NewIngestService(evidenceRepo, publisherService, cfg.Coach.ChunkSize, cfg.Coach.ChunkOverlap, sysLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := consumerService.Consume(ctx); err != nil {
		log.Fatalf("Error: failed to start consumer: %v", err)
	}

	before, err := evidenceRepo.Count(ctx)
	if err != nil {
		log.Fatalf("Error: failed to count evidence: %v", err)
	}

	expected := 0
	expected += seedFile(ctx, ingestService, *notePath, "note", *noteID)
	expected += seedFile(ctx, ingestService, *resumePath, "resume", *resumeID)
	if expected == 0 {
		color.Yellow("Nothing to seed.")
		return
	}

	// The consumer embeds asynchronously; wait for the rows to land.
	color.Cyan("Waiting for %d chunks to be embedded...", expected)
	deadline := time.Now().Add(4 * time.Minute)
	for {
		count, err := evidenceRepo.Count(ctx)
		if err == nil && count >= before+int64(expected) {
			break
		}
		if time.Now().After(deadline) {
			color.Red("Timed out waiting for embeddings; seeded partially.")
			os.Exit(1)
		}
		time.Sleep(500 * time.Millisecond)
	}
	color.Green("Seeding completed: %d evidence chunks.", expected)
}

func seedFile(ctx context.Context, svc service.IIngestService, path, sourceType, sourceID string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		color.Yellow("Skipping %s (%s): %v", sourceType, path, err)
		return 0
	}
	count, err := svc.IngestText(ctx, string(data), sourceType, sourceID)
	if err != nil {
		color.Red("Failed to ingest %s %s: %v", sourceType, sourceID, err)
		return 0
	}
	color.Green("Ingested %s %s: %d chunks scheduled", sourceType, sourceID, count)
	return count
}
