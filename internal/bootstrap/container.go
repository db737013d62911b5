package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/lrfluobida/agent-job-coach/internal/config"
	"github.com/lrfluobida/agent-job-coach/internal/controller"
	"github.com/lrfluobida/agent-job-coach/internal/pkg/logger"
	"github.com/lrfluobida/agent-job-coach/internal/repository/implementation"
	"github.com/lrfluobida/agent-job-coach/internal/service"
	"github.com/lrfluobida/agent-job-coach/pkg/embedding"
	"github.com/lrfluobida/agent-job-coach/pkg/graph"
	"github.com/lrfluobida/agent-job-coach/pkg/interview"
	"github.com/lrfluobida/agent-job-coach/pkg/llm/factory"
	pktNats "github.com/lrfluobida/agent-job-coach/pkg/nats"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
	"github.com/lrfluobida/agent-job-coach/pkg/session"
	"github.com/lrfluobida/agent-job-coach/pkg/skill"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	ChatController   controller.IChatController
	IngestController controller.IIngestController
	SourceController controller.ISourceController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	Logger logger.ILogger
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// Event bus for the embed pipeline
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// Embedding provider
	var embeddingProvider embedding.EmbeddingProvider
	if cfg.Ai.EmbeddingProvider == "ollama" {
		embeddingProvider = embedding.NewOllamaProvider(
			cfg.Ai.OllamaBaseURL,
			cfg.Ai.OllamaEmbedModel,
		)
		log.Printf("[INFO] Using Embedding Provider: OLLAMA (%s)", cfg.Ai.OllamaEmbedModel)
	} else {
		embeddingProvider = embedding.NewZhipuProvider(cfg.Ai.ZhipuAPIKey, cfg.Ai.ZhipuBaseURL, "")
		log.Printf("[INFO] Using Embedding Provider: ZHIPU")
	}

	// LLM provider
	baseURL := cfg.Ai.OllamaBaseURL
	if cfg.Ai.LLMProvider == "zhipu" {
		baseURL = cfg.Ai.ZhipuBaseURL
	}
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		baseURL,
		cfg.Ai.ZhipuAPIKey,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)

	// NATS
	natsPub, err := pktNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
	}

	// Redis
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	sessionStore := session.NewStore(rdb, session.Options{
		LockTTL:  time.Duration(cfg.Coach.LockTTLMillis) * time.Millisecond,
		LockWait: time.Duration(cfg.Coach.LockWaitMillis) * time.Millisecond,
	})

	// Conversation core
	evidenceRepo := implementation.NewEvidenceRepository(db)
	retriever := retrieval.NewService(evidenceRepo, embeddingProvider)
	engine := interview.NewEngine(retriever, interview.NewRandomSampler(cfg.Coach.SampleSeed))
	interviewer := skill.NewInterviewer(llmProvider, retriever)

	publisherService := service.NewPublisherService(pubSub, cfg.App.EmbedTopic)
	ingestLogger := logger.NewIsolatedLogger("logs/ingest.log")
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.App.EmbedTopic,
		evidenceRepo,
		embeddingProvider,
		ingestLogger,
	)
	ingestService := service.NewIngestService(
		evidenceRepo,
		publisherService,
		cfg.Coach.ChunkSize,
		cfg.Coach.ChunkOverlap,
		sysLogger,
	)

	orchestrator := graph.NewOrchestrator(
		llmProvider,
		retriever,
		engine,
		interviewer,
		ingestService,
		cfg.Coach.MaxCitations,
		sysLogger,
	)

	// A typed nil publisher would slip past the interface nil check.
	var turnEvents service.EventPublisher
	if natsPub != nil {
		turnEvents = natsPub
	}
	chatService := service.NewChatService(orchestrator, sessionStore, retriever, turnEvents, sysLogger)
	sourceService := service.NewSourceService(evidenceRepo)

	return &Container{
		ChatController:   controller.NewChatController(chatService, cfg.Coach.StreamBufferLen, sysLogger),
		IngestController: controller.NewIngestController(ingestService),
		SourceController: controller.NewSourceController(sourceService),

		ConsumerService: consumerService,
		Logger:          sysLogger,
	}
}
