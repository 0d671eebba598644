package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ssq-labs/commentpilot/app/controllers"
	apiv1 "github.com/ssq-labs/commentpilot/internal/api/v1"
	"github.com/ssq-labs/commentpilot/internal/pkg/cache"
	"github.com/ssq-labs/commentpilot/internal/pkg/config"
	"github.com/ssq-labs/commentpilot/internal/pkg/database"
	"github.com/ssq-labs/commentpilot/internal/pkg/env"
	"github.com/ssq-labs/commentpilot/internal/pkg/jobqueue"
	"github.com/ssq-labs/commentpilot/internal/pkg/metrics/counter"
	"github.com/ssq-labs/commentpilot/internal/pkg/router"
	"github.com/ssq-labs/commentpilot/internal/pkg/service"
)

func main() {
	app, svc, server := NewApplication()

	if server.EmbeddedWorker {
		svc.RegisterWorkers()
		svc.Manager.Start()
		log.Println("Embedded worker started")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", server.Host, server.Port))
	if server.EmbeddedWorker {
		svc.Manager.Stop()
	}
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *service.Service, config.Server) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	server, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}
	settings, err := service.LoadSettings()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	manager := jobqueue.GetManager()
	svc, err := service.New(ctx, database.GetDB(), manager, settings)
	if err != nil {
		log.Fatal(err)
	}
	doc, err := apiv1.LoadSpec(ctx)
	if err != nil {
		log.Fatal(err)
	}

	app := fiber.New(fiber.Config{
		AppName:     "commentpilot",
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
		BodyLimit:   1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	if server.MetricsPassword != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				"admin": server.MetricsPassword,
			},
		}), monitor.New())
	}

	// SWAGGER / OPENAPI
	if specPath := findSpecFile(); specPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: specPath,
			Path:     "v1",
		}))
	}

	webhooks := controllers.NewWebhookController(settings.Meta.VerifyToken, svc.Repos.Integration, svc.Pipeline, settings.Pipeline.IngestTimeout)
	if svc.Archiver != nil {
		webhooks.SetArchiveQueue(manager.GetQueue())
	}
	admin := controllers.NewAdminWebhookController(svc.Repos.WebhookLog, svc.Pipeline.Dispatcher, manager.GetQueue())
	outcomes := counter.New(cache.GetClient())
	webhooks.SetOutcomeRecorder(outcomes)
	admin.SetOutcomeTotals(outcomes)

	rules := controllers.NewAdminDmRuleController(svc.Repos.DmAutomation, svc.Repos.Integration)

	api, err := router.NewRedisApiRouter(apiv1.NewAPIServer(webhooks, admin, rules), doc, server, settings.Meta.AppSecret)
	if err != nil {
		log.Fatal(err)
	}
	router.InstallRouter(app, api)

	return app, svc, server
}

// findSpecFile locates openapi.yml from the project root or a cmd directory.
func findSpecFile() string {
	for _, base := range []string{"./", "../../", "../../../"} {
		path := base + "internal/api/v1/openapi.yml"
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
