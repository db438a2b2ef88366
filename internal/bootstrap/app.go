package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"hsmt-backend/internal/emails"
	"hsmt-backend/internal/extraction"
	"hsmt-backend/internal/histories"
	"hsmt-backend/internal/ingest"
	"hsmt-backend/internal/llm"
	openai "hsmt-backend/internal/llm/openai"
	"hsmt-backend/internal/llm/vertex"
	"hsmt-backend/internal/mail"
	"hsmt-backend/internal/ocr"
	"hsmt-backend/internal/pipeline"
	"hsmt-backend/internal/proposals"
	"hsmt-backend/internal/queue"
	"hsmt-backend/internal/services/health"
	"hsmt-backend/internal/shared/config"
	"hsmt-backend/internal/shared/server"
	"hsmt-backend/internal/shared/storage/db"
	"hsmt-backend/internal/shared/storage/object"
	localstore "hsmt-backend/internal/shared/storage/object/local"
	miniostore "hsmt-backend/internal/shared/storage/object/minio"
	s3store "hsmt-backend/internal/shared/storage/object/s3"
	"hsmt-backend/internal/sqlanswer"
	"hsmt-backend/internal/tasks"
	"hsmt-backend/internal/trace"
)

// App holds the shared dependencies of every process.
type App struct {
	Config    config.Config
	DB        *sqlx.DB
	Store     object.Store
	Bus       queue.Bus
	Emails    emails.Repo
	Proposals proposals.Repo
	Histories histories.Repo
	Trace     *trace.Client
	Mail      *mail.Gateway
	Pipeline  *pipeline.Pipeline
	Pool      *tasks.Pool
	Health    *health.Service
	Router    *gin.Engine

	closers []func() error
}

// Build connects every collaborator. In dev-like environments a missing
// database, bus, store or provider falls back to an in-process stand-in.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	app := &App{Config: cfg, Health: health.NewService()}

	if err := app.buildDB(ctx); err != nil {
		return nil, err
	}
	if err := app.buildStore(ctx); err != nil {
		return nil, err
	}
	if err := app.buildBus(ctx); err != nil {
		return nil, err
	}
	app.buildRepos()
	app.Trace = trace.New(cfg.LangfuseBaseURL, cfg.LangfusePublicKey, cfg.LangfuseSecretKey)
	app.Mail = buildMail(ctx, cfg)

	if err := app.buildPipeline(ctx); err != nil {
		_ = app.Close()
		return nil, err
	}

	app.Pool = tasks.NewPool(cfg.WorkerConcurrency)
	app.Router = server.NewRouter(server.RouterDeps{Config: cfg, Health: app.Health, Tasks: app.Pool})
	return app, nil
}

func (a *App) buildDB(ctx context.Context) error {
	if strings.TrimSpace(a.Config.DatabaseURL) == "" {
		if a.Config.IsDevLike() {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil
		}
		return fmt.Errorf("DATABASE_URL is required")
	}
	conn, err := db.Connect(ctx, a.Config.DatabaseURL, db.OptionsFromEnv(db.DefaultWorkerOptions()))
	if err != nil {
		if a.Config.IsDevLike() {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil
		}
		return err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	a.Health.Register("db", conn.PingContext)
	return nil
}

func (a *App) buildStore(ctx context.Context) error {
	cfg := a.Config
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Prefix)
		if err != nil {
			return err
		}
		a.Store = store
	case "minio":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" && cfg.IsDevLike() {
			log.Printf("bootstrap: MINIO_ENDPOINT empty; using local store at %s", cfg.LocalStoreDir)
			a.Store = localstore.New(cfg.LocalStoreDir)
			return nil
		}
		store, err := miniostore.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioSecure, cfg.Bucket, cfg.MarkdownBucket)
		if err != nil {
			return err
		}
		a.Store = store
	default:
		a.Store = localstore.New(cfg.LocalStoreDir)
	}
	return nil
}

func (a *App) buildBus(ctx context.Context) error {
	cfg := a.Config
	backoff := time.Duration(cfg.BusBackoffSeconds) * time.Second
	var (
		bus queue.Bus
		err error
	)
	switch cfg.BusType {
	case "sqs":
		bus, err = queue.NewSQS(ctx, cfg.AWSRegion, cfg.SQSQueueURLPrefix, backoff)
	case "memory":
		bus = queue.NewMemory()
	default:
		if strings.TrimSpace(cfg.RabbitURL) == "" && cfg.IsDevLike() {
			log.Printf("bootstrap: RABBITMQ_URL empty; using in-memory bus")
			bus = queue.NewMemory()
			break
		}
		bus, err = queue.NewAMQP(cfg.RabbitURL, backoff)
	}
	if err != nil {
		return err
	}
	a.Bus = bus
	a.closers = append(a.closers, bus.Close)
	return nil
}

func (a *App) buildRepos() {
	if a.DB != nil {
		a.Emails = &emails.PGRepo{DB: a.DB}
		a.Proposals = &proposals.PGRepo{DB: a.DB}
		a.Histories = &histories.PGRepo{DB: a.DB}
		return
	}
	a.Emails = emails.NewMemoryRepo()
	a.Proposals = proposals.NewMemoryRepo()
	a.Histories = histories.NewMemoryRepo()
}

func buildMail(ctx context.Context, cfg config.Config) *mail.Gateway {
	gw := &mail.Gateway{Mailbox: cfg.IMAPMailbox}
	if strings.TrimSpace(cfg.SMTPHost) == "" {
		log.Printf("bootstrap: SMTP_HOST empty; outgoing mail is logged only")
		gw.Sender = mail.LogSender{From: cfg.SMTPFrom}
	} else {
		resolver := &mail.Resolver{TmpDir: cfg.TmpDir}
		if strings.TrimSpace(cfg.FileStoreBaseURL) != "" {
			resolver.Files = mail.NewFileStore(ctx, cfg.FileStoreBaseURL, cfg.FileStoreTokenURL, cfg.FileStoreClientID, cfg.FileStoreSecret)
		}
		gw.Sender = mail.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom, resolver)
	}
	if strings.TrimSpace(cfg.IMAPHost) != "" {
		gw.Reader = mail.NewIMAPReader(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), cfg.IMAPUser, cfg.IMAPPassword)
	}
	return gw
}

func (a *App) buildPipeline(ctx context.Context) error {
	cfg := a.Config

	base, err := a.buildLLM()
	if err != nil {
		return err
	}
	caller, err := llm.NewCaller(trace.WrapLLM(llm.WithRetry(base, "")))
	if err != nil {
		return err
	}
	vision, err := a.buildVision(ctx, base)
	if err != nil {
		return err
	}
	ocrPrompt, err := caller.Catalog.Text("ocr_page", nil)
	if err != nil {
		return err
	}

	extractor := extraction.New(a.Store, cfg.Bucket, caller, a.Proposals)
	extractor.AgentName = cfg.AgentAIName
	extractor.AgentCode = cfg.AgentAICode

	var answerer pipeline.Answerer
	if a.DB != nil {
		answerer = sqlanswer.New(caller, sqlanswer.ReadOnlyDB{DB: a.DB}, a.Proposals)
	} else {
		log.Printf("bootstrap: no database; finance compliance answers are skipped")
	}

	templates, err := loadTemplates(cfg)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Emails:           a.Emails,
		Proposals:        a.Proposals,
		Histories:        a.Histories,
		Store:            a.Store,
		Bucket:           cfg.Bucket,
		MarkdownBucket:   cfg.MarkdownBucket,
		Bus:              a.Bus,
		QueueName:        cfg.QueueName,
		Mail:             a.Mail,
		NotifyRecipients: cfg.NotifyRecipients,
		OCR:              ocr.NewBridge(vision, ocrPrompt),
		Extractor:        extractor,
		Answerer:         answerer,
		Templates:        templates,
		Trace:            a.Trace,
		TmpDir:           cfg.TmpDir,
	}
	a.Pipeline = p
	return nil
}

// buildLLM returns the completion provider. An openai client also serves
// vision calls.
func (a *App) buildLLM() (llm.Client, error) {
	cfg := a.Config
	if cfg.LLMProvider == "openai" && strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		return openai.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel)
	}
	if !cfg.IsDevLike() {
		return nil, fmt.Errorf("LLM_PROVIDER=%q requires OPENAI_API_KEY", cfg.LLMProvider)
	}
	log.Printf("bootstrap: no LLM provider configured; model calls will fail")
	return llm.PlaceholderClient{}, nil
}

func (a *App) buildVision(ctx context.Context, base llm.Client) (llm.VisionClient, error) {
	cfg := a.Config
	switch cfg.OCRProvider {
	case "vertex":
		v, err := vertex.NewVision(ctx, cfg.VertexProject, cfg.VertexRegion, cfg.OCRModel)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, v.Close)
		return v, nil
	default:
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			return openai.NewClient(cfg.OpenAIAPIKey, cfg.OCRModel)
		}
		if vc, ok := base.(llm.VisionClient); ok {
			return vc, nil
		}
		return llm.PlaceholderClient{}, nil
	}
}

func loadTemplates(cfg config.Config) (pipeline.Templates, error) {
	var out pipeline.Templates
	var err error
	if out.Checklist, err = readTemplate(cfg.ChecklistTemplate); err != nil {
		if !cfg.IsDevLike() {
			return out, err
		}
		log.Printf("bootstrap: checklist template unavailable: %v", err)
	}
	if out.Technical, err = readTemplate(cfg.TechnicalTemplate); err != nil {
		log.Printf("bootstrap: technical template unavailable; the word table is skipped: %v", err)
	}
	return out, nil
}

func readTemplate(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("template path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return data, nil
}

// Stage returns the stage named by HSMT_STAGE.
func (a *App) Stage(name string) (pipeline.Stage, error) {
	p := a.Pipeline
	switch strings.ToLower(strings.TrimSpace(name)) {
	case pipeline.StageClassify:
		return p.ClassifyStage(), nil
	case pipeline.StageChapterSplitter:
		return p.SplitterStage(), nil
	case pipeline.StageExtraction:
		return p.ExtractionStage(), nil
	case pipeline.StageSQLAnswer:
		return p.AnswerStage(), nil
	case pipeline.StageSendMail:
		return p.SendMailStage(), nil
	default:
		return pipeline.Stage{}, fmt.Errorf("unknown stage %q", name)
	}
}

// Driver returns a consumer loop bound to the app's bus and task pool.
func (a *App) Driver() *pipeline.Driver {
	return &pipeline.Driver{
		Bus:       a.Bus,
		Histories: a.Histories,
		Pipeline:  a.Pipeline,
		Pool:      a.Pool,
		Backoff:   time.Duration(a.Config.BusBackoffSeconds) * time.Second,
	}
}

// Poller returns the inbox poller. It requires an IMAP reader.
func (a *App) Poller() (*ingest.Poller, error) {
	if a.Mail.Reader == nil {
		return nil, errors.New("IMAP_HOST is required for the mail poller")
	}
	filter, err := mail.ParseFilter(a.Config.IMAPFilter)
	if err != nil {
		return nil, err
	}
	return &ingest.Poller{
		Reader:    a.Mail.Reader,
		Mailbox:   a.Config.IMAPMailbox,
		Filter:    filter,
		Interval:  time.Duration(a.Config.MailPollSeconds) * time.Second,
		Emails:    a.Emails,
		Store:     a.Store,
		Bucket:    a.Config.Bucket,
		Bus:       a.Bus,
		QueueName: a.Config.QueueName,
		TmpDir:    a.Config.TmpDir,
	}, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
