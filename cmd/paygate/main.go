package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/stockvn/paygate/internal/config"
	"github.com/stockvn/paygate/internal/gateway"
	"github.com/stockvn/paygate/internal/http_api"
	"github.com/stockvn/paygate/internal/models"
	"github.com/stockvn/paygate/internal/notificator"
	"github.com/stockvn/paygate/internal/paygate"
	"github.com/stockvn/paygate/internal/repository"
	"github.com/stockvn/paygate/internal/requestlog"
	"github.com/stockvn/paygate/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "paygate",
		Usage: "Wallet, payment intent and symbol licensing service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "database-url", Usage: "Postgres connection string"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Aliases: []string{"P"}, Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Serve the HTTP API and background jobs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "port", Usage: "HTTP port"},
				},
				Action: serve,
			},
			{
				Name:  "run_autorenew",
				Usage: "Charge due subscriptions once and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum subscriptions to process"},
					&cli.BoolFlag{Name: "verbose", Usage: "Log every subscription"},
				},
				Action: runAutoRenew,
			},
			{
				Name:   "migrate",
				Usage:  "Create or update the database schema",
				Action: migrate,
			},
			{
				Name:  "audit-ledger",
				Usage: "Check wallet balances against their ledger entries",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "wallet", Usage: "Audit a single wallet"},
				},
				Action: auditLedger,
			},
			{
				Name:  "create-user",
				Usage: "Register an account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "name"},
					&cli.StringFlag{Name: "telegram", Usage: "Telegram username used to link notifications"},
				},
				Action: createUser,
			},
			{
				Name:  "replay-webhook",
				Usage: "Process a recorded gateway event again",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "id", Required: true, Usage: "Gateway transaction id"},
				},
				Action: replayWebhook,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %v", err)
	}

	// Override with flags if set
	if c.IsSet("database-url") {
		cfg.DatabaseURL = c.String("database-url")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	return cfg, nil
}

type deps struct {
	cfg *config.Config
	log *logger.Logger
	db  *repository.PostgresDB
}

func (d *deps) close() {
	if err := d.db.Close(); err != nil {
		d.log.Error("Failed to close database", "error", err)
	}
	d.log.Sync()
}

// setup loads configuration, the logger and the database. migrate runs AutoMigrate on connect.
func setup(c *cli.Context, validate func(*config.Config) error, migrate bool) (*deps, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development || c.Bool("verbose"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %v", err)
	}

	// Initialize database
	db, err := repository.NewPostgresDB(cfg.DSN(), migrate, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}
	return &deps{cfg: cfg, log: log, db: db}, nil
}

func (d *deps) notificator() *notificator.Notificator {
	var telegram *notificator.TelegramNotificator
	if d.cfg.TelegramBotToken != "" {
		t, err := notificator.NewTelegramNotificator(d.log, d.cfg.TelegramBotToken, d.db)
		if err != nil {
			d.log.Error("Telegram notifications disabled", "error", err)
		} else {
			telegram = t
		}
	}
	var email *notificator.EmailNotificator
	if d.cfg.SMTPHost != "" {
		email = notificator.NewEmailNotificator(d.log, d.cfg.SMTPHost, d.cfg.SMTPPort, d.cfg.SMTPUser, d.cfg.SMTPPassword, d.cfg.SMTPSender)
	}
	return notificator.NewNotificator(d.log, d.db, telegram, email)
}

func (d *deps) paygate(n models.NotificationService) *paygate.Paygate {
	client := gateway.NewClient(d.cfg.BanksURL, d.cfg.GatewayTimeout)
	return paygate.NewPaygate(d.db, client, n, d.log, d.cfg)
}

func (d *deps) redis() *redis.Client {
	if d.cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     d.cfg.RedisAddr,
		Password: d.cfg.RedisPassword,
		DB:       d.cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		d.log.Warn("Redis unavailable, rate limiting disabled", "addr", d.cfg.RedisAddr, "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func serve(c *cli.Context) error {
	d, err := setup(c, (*config.Config).Validate, false)
	if err != nil {
		return err
	}
	defer d.close()
	if d.cfg.AutoMigrate {
		if err := d.db.Migrate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	notif := d.notificator()
	app := d.paygate(notif)

	requests := requestlog.NewWriter(d.db, d.cfg.RequestLogBuffer, d.log.With("component", "requestlog"))
	requests.Start()

	redisClient := d.redis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	apiServer := http_api.NewHTTPServer(app, http_api.Options{
		Port:               d.cfg.APIPort,
		AllowedOrigins:     d.cfg.AllowedOrigins,
		WebhookAPIKey:      d.cfg.WebhookAPIKey,
		Redis:              redisClient,
		RateLimitPerMinute: d.cfg.RateLimitPerMinute,
		Requests:           requests,
	}, d.log)

	// Start the application
	app.Start(ctx)
	notif.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	select {
	case <-ctx.Done():
		d.log.Info("Shutdown signal received")
	case err = <-errCh:
	}

	if shutdownErr := apiServer.Shutdown(); shutdownErr != nil {
		d.log.Error("Failed to shut down HTTP server", "error", shutdownErr)
	}
	app.Stop()
	requests.Stop()
	return err
}

func runAutoRenew(c *cli.Context) error {
	d, err := setup(c, (*config.Config).Validate, false)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	defer d.close()

	app := d.paygate(d.notificator())
	defer app.Stop()

	started := time.Now()
	report, err := app.RunAutoRenew(c.Context, c.Int("limit"))
	if err != nil {
		d.log.Error("Auto-renew run failed", "error", err)
		return cli.Exit(fmt.Sprintf("auto-renew failed: %v", err), 1)
	}

	out, _ := json.Marshal(report)
	fmt.Println(string(out))
	d.log.Info("Auto-renew finished", "processed", report.Processed, "success", report.Success,
		"skipped", report.Skipped, "failed", report.Failed, "duration", time.Since(started))
	if report.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d subscription(s) failed to renew", report.Failed), 1)
	}
	return nil
}

func migrate(c *cli.Context) error {
	d, err := setup(c, (*config.Config).ValidateDatabase, true)
	if err != nil {
		return err
	}
	defer d.close()
	d.log.Info("Database schema is up to date")
	return nil
}

func auditLedger(c *cli.Context) error {
	d, err := setup(c, (*config.Config).ValidateDatabase, false)
	if err != nil {
		return err
	}
	defer d.close()
	ledger := d.paygate(nil).Ledger()

	if id := c.String("wallet"); id != "" {
		report, err := ledger.Audit(c.Context, id)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		if !report.OK() {
			return cli.Exit("ledger audit failed", 1)
		}
		return nil
	}

	failed, total, err := ledger.AuditAll(c.Context)
	if err != nil {
		return err
	}
	fmt.Printf("audited %d wallet(s), %d with violations\n", total, len(failed))
	for _, report := range failed {
		out, _ := json.Marshal(report)
		fmt.Println(string(out))
	}
	if len(failed) > 0 {
		return cli.Exit("ledger audit failed", 1)
	}
	return nil
}

func createUser(c *cli.Context) error {
	d, err := setup(c, (*config.Config).ValidateDatabase, false)
	if err != nil {
		return err
	}
	defer d.close()
	user, err := d.paygate(nil).Auth().CreateUser(c.Context, c.String("email"), c.String("password"), c.String("name"), c.String("telegram"))
	if err != nil {
		return err
	}
	fmt.Println(user.ID)
	return nil
}

func replayWebhook(c *cli.Context) error {
	d, err := setup(c, (*config.Config).Validate, false)
	if err != nil {
		return err
	}
	defer d.close()
	ack, err := d.paygate(nil).Inbox().Retry(c.Context, c.Int64("id"))
	if err != nil {
		return err
	}
	out, _ := json.Marshal(ack)
	fmt.Println(string(out))
	if ack.Status == models.AckFailed {
		return cli.Exit("event processing failed: "+ack.Error, 1)
	}
	return nil
}
