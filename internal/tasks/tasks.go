package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/BrianStatesThat/thepepassport/internal/config"
	"github.com/BrianStatesThat/thepepassport/internal/db"
	"github.com/BrianStatesThat/thepepassport/internal/email"
	"github.com/BrianStatesThat/thepepassport/internal/models"
	"github.com/BrianStatesThat/thepepassport/internal/services"
	"github.com/BrianStatesThat/thepepassport/internal/storage"
)

// Task types.
const (
	TypeEnquiryNotify  = "enquiry:notify"
	TypeSitemapPublish = "sitemap:publish"
)

const sitemapCacheControl = "public, max-age=3600"

// IAsynqClient is the part of *asynq.Client used to enqueue tasks.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RedisOpt returns the asynq connection options for cfg.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// --- Task Client (Enqueuing tasks) ---

func NewClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(RedisOpt(cfg))
}

// EnquiryNotifyPayload carries a stored enquiry to the notification task.
type EnquiryNotifyPayload struct {
	Enquiry models.Enquiry `json:"enquiry"`
}

// SitemapPublishPayload is the payload of a sitemap:publish task.
type SitemapPublishPayload struct {
	RequestedAt string `json:"requested_at"`
}

// EnquiryNotifier queues a notification email for each stored enquiry.
type EnquiryNotifier struct {
	client IAsynqClient
}

var _ services.EnquiryNotifier = (*EnquiryNotifier)(nil)

func NewEnquiryNotifier(client IAsynqClient) *EnquiryNotifier {
	return &EnquiryNotifier{client: client}
}

// NotifyEnquiry implements services.EnquiryNotifier.
func (n *EnquiryNotifier) NotifyEnquiry(ctx context.Context, enquiry *models.Enquiry) error {
	payload, err := json.Marshal(EnquiryNotifyPayload{Enquiry: *enquiry})
	if err != nil {
		return fmt.Errorf("failed to marshal enquiry payload: %w", err)
	}
	info, err := n.client.EnqueueContext(ctx, asynq.NewTask(TypeEnquiryNotify, payload), asynq.Queue("critical"), asynq.MaxRetry(10))
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", TypeEnquiryNotify, err)
	}
	slog.Debug("enqueued task", "type", TypeEnquiryNotify, "id", info.ID, "reference", enquiry.Reference)
	return nil
}

// SitemapPublishTaskID is the task id shared by all publish requests made
// in now's minute.
func SitemapPublishTaskID(now time.Time) string {
	return TypeSitemapPublish + ":" + now.UTC().Format("200601021504")
}

// EnqueueSitemapPublish queues a one-off sitemap publish. Requests made
// within the same minute collapse into one task.
func EnqueueSitemapPublish(ctx context.Context, client IAsynqClient, now time.Time) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(SitemapPublishPayload{RequestedAt: now.UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sitemap payload: %w", err)
	}
	info, err := client.EnqueueContext(ctx, asynq.NewTask(TypeSitemapPublish, payload),
		asynq.Queue("low"),
		asynq.TaskID(SitemapPublishTaskID(now)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s: %w", TypeSitemapPublish, err)
	}
	return info, nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	cfg            *config.Config
	emailSender    email.Sender
	storageService storage.IS3Storage
	sitemapService services.ISitemapService
	log            *slog.Logger
	now            func() time.Time
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	sitemapService services.ISitemapService,
	logger *slog.Logger,
) *TaskProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskProcessor{
		cfg:            cfg,
		emailSender:    emailSender,
		storageService: storageService,
		sitemapService: sitemapService,
		log:            logger,
		now:            time.Now,
	}
}

// Mux routes task types to their handlers.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEnquiryNotify, p.HandleEnquiryNotifyTask)
	mux.HandleFunc(TypeSitemapPublish, p.HandleSitemapPublishTask)
	return mux
}

// SetupServer configures and returns an Asynq server instance. The caller
// runs it with p.Mux().
func SetupServer(cfg *config.Config, logger *slog.Logger) *asynq.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return asynq.NewServer(
		RedisOpt(cfg),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task failed", "type", task.Type(), "payload", string(task.Payload()), "err", err)
			}),
		},
	)
}

// SetupScheduler registers the periodic sitemap publish. It returns nil
// when no cron spec or bucket is configured.
func SetupScheduler(cfg *config.Config) (*asynq.Scheduler, error) {
	if strings.TrimSpace(cfg.SitemapPublishCron) == "" || cfg.AwsS3Bucket == "" {
		return nil, nil
	}
	scheduler := asynq.NewScheduler(RedisOpt(cfg), &asynq.SchedulerOpts{Location: services.SAST})
	if _, err := scheduler.Register(cfg.SitemapPublishCron, asynq.NewTask(TypeSitemapPublish, nil), asynq.Queue("low")); err != nil {
		return nil, fmt.Errorf("invalid sitemap publish schedule %q: %w", cfg.SitemapPublishCron, err)
	}
	return scheduler, nil
}

// --- Task Handlers ---

// HandleEnquiryNotifyTask emails a new enquiry to the site inbox.
func (p *TaskProcessor) HandleEnquiryNotifyTask(ctx context.Context, t *asynq.Task) error {
	var payload EnquiryNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal enquiry payload: %v: %w", err, asynq.SkipRetry)
	}
	e := payload.Enquiry
	if p.cfg.EnquiryNotifyAddress == "" {
		p.log.Warn("no enquiry notify address configured, dropping notification", "reference", e.Reference)
		return nil
	}

	msg := email.Message{
		From:    p.cfg.SmtpFromAddress,
		To:      p.cfg.EnquiryNotifyAddress,
		ReplyTo: e.Email,
		Subject: fmt.Sprintf("New enquiry %s from %s", e.Reference, e.Name),
		Kind:    "enquiry",
		Body:    enquiryBody(p.cfg.AppName, e),
	}
	if err := p.emailSender.Send(ctx, []string{msg.To}, msg.Subject, msg.Compose(p.now())); err != nil {
		return fmt.Errorf("failed to send enquiry %s: %w", e.Reference, err)
	}
	p.log.Info("enquiry notification sent", "reference", e.Reference, "to", msg.To)
	return nil
}

func enquiryBody(app string, e models.Enquiry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "A new enquiry was submitted on %s.\n\n", app)
	fmt.Fprintf(&sb, "Reference: %s\n", e.Reference)
	fmt.Fprintf(&sb, "Name: %s\n", e.Name)
	fmt.Fprintf(&sb, "Email: %s\n", e.Email)
	if e.Phone != "" {
		fmt.Fprintf(&sb, "Phone: %s\n", e.Phone)
	}
	if e.ListingID != "" {
		fmt.Fprintf(&sb, "Listing: %s\n", e.ListingID)
	}
	sb.WriteString("\n")
	sb.WriteString(e.Message)
	return sb.String()
}

// HandleSitemapPublishTask renders the sitemap and uploads it. A partial
// render is not published so a failing read never shrinks the live file.
func (p *TaskProcessor) HandleSitemapPublishTask(ctx context.Context, t *asynq.Task) error {
	url, err := p.PublishSitemap(ctx)
	if errors.Is(err, storage.ErrNoBucket) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	p.log.Info("sitemap published", "url", url)
	return nil
}

// PublishSitemap renders the sitemap as an anonymous visitor and uploads it
// to the configured key.
func (p *TaskProcessor) PublishSitemap(ctx context.Context) (string, error) {
	if p.storageService == nil {
		return "", storage.ErrNoBucket
	}
	doc, err := p.sitemapService.Render(ctx, db.Anonymous, p.now())
	if err != nil {
		return "", fmt.Errorf("sitemap render incomplete: %w", err)
	}
	key := p.cfg.SitemapS3Key
	if key == "" {
		key = "sitemap.xml"
	}
	return p.storageService.PutObject(ctx, key, "application/xml; charset=utf-8", sitemapCacheControl, doc)
}
