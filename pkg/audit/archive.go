package audit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tessergrc/authcore/pkg/observability"
)

var archiveTracer = otel.Tracer("authcore/audit")

// ArchiveConfig configures the S3 target and schedule for audit
// archival.
type ArchiveConfig struct {
	Bucket       string
	Region       string
	Endpoint     string // non-empty for MinIO or compatible stores
	AccessKey    string
	SecretKey    string
	UsePathStyle bool

	// Schedule is a cron expression. Default: daily at 00:30 UTC.
	Schedule string

	// Retention bounds how long events stay queryable in Postgres
	// after archival.
	Retention RetentionPolicy
}

// Archiver periodically exports the previous day's events to S3 as
// NDJSON and prunes events past retention from the database.
type Archiver struct {
	client *s3.Client
	bucket string
	sink   *DBSink
	logger *observability.Logger
	cron   *cron.Cron
	policy RetentionPolicy
	now    func() time.Time
}

// NewArchiver builds the S3 client. Static credentials are used when
// provided; otherwise the default AWS credential chain applies.
func NewArchiver(ctx context.Context, cfg ArchiveConfig, sink *DBSink, logger *observability.Logger) (*Archiver, error) {
	var awsCfg aws.Config
	var err error
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKey, cfg.SecretKey, "",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Archiver{
		client: client,
		bucket: cfg.Bucket,
		sink:   sink,
		logger: logger,
		policy: cfg.Retention,
		now:    time.Now,
	}, nil
}

// Start schedules the archival job. Blocks only until the scheduler
// is running.
func (a *Archiver) Start(schedule string) error {
	if schedule == "" {
		schedule = "30 0 * * *"
	}
	a.cron = cron.New()
	_, err := a.cron.AddFunc(schedule, func() {
		if err := a.RunOnce(context.Background()); err != nil {
			a.logger.WithError(err).Error("audit archival run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling audit archival: %w", err)
	}
	a.cron.Start()
	a.logger.WithField("schedule", schedule).Info("audit archiver started")
	return nil
}

// Stop halts the scheduler, waiting for a running job to finish.
func (a *Archiver) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}

// RunOnce archives yesterday's events and prunes expired ones. Safe
// to invoke manually for backfills.
func (a *Archiver) RunOnce(ctx context.Context) error {
	ctx, span := archiveTracer.Start(ctx, "Archiver.RunOnce")
	defer span.End()

	day := a.now().UTC().AddDate(0, 0, -1)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	data, err := Export(ctx, a.sink, QueryFilter{Since: &start, Until: &end}, ExportFormatNDJSON)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "export failed")
		return err
	}

	if len(data) > 0 {
		key := fmt.Sprintf("audit/%s.ndjson", start.Format("2006-01-02"))
		if err := a.upload(ctx, key, data); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload failed")
			return err
		}
		a.logger.WithFields(map[string]interface{}{
			"key":   key,
			"bytes": len(data),
		}).Info("audit archive uploaded")
	}

	if a.policy.MaxAge > 0 {
		deleted, err := a.sink.DeleteBefore(ctx, a.policy.cutoff(a.now().UTC()))
		if err != nil {
			span.RecordError(err)
			return err
		}
		if deleted > 0 {
			a.logger.WithFields(map[string]interface{}{
				"deleted":   deleted,
				"retention": a.policy.String(),
			}).Info("expired audit events pruned")
		}
	}
	return nil
}

func (a *Archiver) upload(ctx context.Context, key string, data []byte) error {
	ctx, span := archiveTracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ExportFormatNDJSON.ContentType()),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "put object failed")
		return fmt.Errorf("uploading audit archive %s: %w", key, err)
	}
	return nil
}
