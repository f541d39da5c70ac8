// Package app assembles the stores, sinks and workflow service from config.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mind-engage/safetytest/internal/attempt"
	auth "github.com/mind-engage/safetytest/internal/auth/middleware"
	"github.com/mind-engage/safetytest/internal/certificate"
	"github.com/mind-engage/safetytest/internal/config"
	"github.com/mind-engage/safetytest/internal/db"
	"github.com/mind-engage/safetytest/internal/directory"
	"github.com/mind-engage/safetytest/internal/eventlog"
	"github.com/mind-engage/safetytest/internal/exam"
	"github.com/mind-engage/safetytest/internal/grading"
	"github.com/mind-engage/safetytest/internal/metrics"
	"github.com/mind-engage/safetytest/internal/notify"
	"github.com/mind-engage/safetytest/internal/rbac"
	"github.com/mind-engage/safetytest/internal/storage"
	"github.com/mind-engage/safetytest/internal/workflow"
)

type App struct {
	Config    config.Config
	Log       *slog.Logger
	DB        *sql.DB
	Bank      *exam.SQLStore
	Attempts  *attempt.SQLStore
	People    *directory.SQLDirectory
	Events    *eventlog.SQLRepo
	Blobs     *storage.FSStore
	Registry  *prometheus.Registry
	Service   *workflow.Service
	publisher *eventlog.AMQPPublisher
}

// New opens the database and builds every dependency. A broker that cannot
// be reached is logged and skipped; the SQL event log still records.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	blobs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	a := &App{
		Config:   cfg,
		Log:      log,
		DB:       d,
		Bank:     exam.NewSQLStore(d),
		Attempts: attempt.NewSQLStore(d),
		People:   directory.NewSQLDirectory(d),
		Events:   eventlog.NewSQLRepo(d, cfg.SiteID),
		Blobs:    blobs,
		Registry: prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	sinks := eventlog.Multi{a.Events, eventlog.SlogSink{Log: log}}
	if cfg.RabbitURL != "" {
		pub, err := eventlog.NewAMQPPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			log.Warn("event broker unavailable, continuing without it", "err", err)
		} else {
			a.publisher = pub
			sinks = append(sinks, pub)
		}
	}

	var mailer notify.Mailer = notify.LogMailer{Log: log}
	if cfg.SMTP.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.SMTP)
	}

	a.Service = workflow.NewService(workflow.Deps{
		Bank:      a.Bank,
		Tracker:   attempt.NewTracker(a.Attempts),
		Directory: a.People,
		Sampler:   exam.NewSampler(exam.WithStrictQuota(cfg.StrictQuota)),
		Grader:    grading.NewGrader(grading.WithPassThreshold(cfg.PassThreshold)),
		Certs:     certificate.NewPDFRenderer(blobs, certificate.WithDefaultTemplate(cfg.DefaultCertTemplate), certificate.WithCompression(true)),
		Mailer:    mailer,
		Events:    eventlog.NewRecorder(sinks, log),
		Metrics:   metrics.New(a.Registry),
		Log:       log,
		PublicURL: cfg.PublicURL,
	})
	return a, nil
}

func (a *App) Close() error {
	if a.publisher != nil {
		a.publisher.Close()
	}
	return a.DB.Close()
}

// NewAuth builds the instructor login service, or nil when no signing secret
// or no account is configured. A nil service leaves instructor routes unmounted.
func NewAuth(cfg config.Config) *auth.AuthService {
	if cfg.AuthHMACSecret == "" {
		return nil
	}
	if cfg.AdminPassHash == "" && (cfg.InstructorUser == "" || cfg.InstructorPassHash == "") {
		return nil
	}
	a := auth.NewAuthService(cfg.AuthHMACSecret, cfg.AdminUser, cfg.AdminPassHash)
	a.AddAccount(cfg.InstructorUser, cfg.InstructorPassHash, rbac.RoleInstructor)
	return a
}
