package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"polotno-studio/assets"
	"polotno-studio/auth"
	"polotno-studio/config"
	"polotno-studio/core"
	"polotno-studio/credits"
	"polotno-studio/designs"
	accountAPI "polotno-studio/handlers/api/account"
	"polotno-studio/handlers/api/ai"
	assetsAPI "polotno-studio/handlers/api/assets"
	designsAPI "polotno-studio/handlers/api/designs"
	projectAPI "polotno-studio/handlers/api/project"
	"polotno-studio/handlers/events"
	authMiddleware "polotno-studio/middleware"
	"polotno-studio/project"
	"polotno-studio/scene"
	"polotno-studio/stores"
	"polotno-studio/watchdog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg        *config.Config
	account    *auth.Account
	doc        *scene.Document
	designs    *designs.Repository
	assets     *assets.Repository
	controller *project.Controller
	ai         *ai.Proxy
	oauth      *auth.Handlers
	events     *events.Server
}

func newApp(ctx context.Context, cfg *config.Config) *app {
	account := auth.NewAccount(cfg.JWTSecret)

	var probe watchdog.Prober
	if cfg.RemoteProbeURL != "" {
		probe = watchdog.HTTPProbe(cfg.RemoteProbeURL, nil)
	}
	guard := watchdog.New(cfg.RemoteCallTimeout, watchdog.LogSink{}, probe)

	local := stores.GetLocal(cfg)
	remote, hosting := stores.GetRemote(cfg)
	selector := stores.NewSelector(local, remote, account, guard)

	doc := scene.NewDocument()
	designRepo := designs.NewRepository(selector)
	provisioner := assets.NewProvisioner(watchdog.WrapHosting(hosting, guard), selector, assets.UploadDir)
	// The cached subdomain belongs to the account that was signed in.
	var mu sync.Mutex
	var subject string
	account.Subscribe(func(signedIn bool) {
		mu.Lock()
		defer mu.Unlock()
		if signedIn {
			if user, ok := account.User(); ok {
				subject = user.Subject
			}
			return
		}
		provisioner.Forget(subject)
	})

	controller := project.NewController(project.Options{
		Document:      doc,
		Designs:       designRepo,
		Local:         local,
		Account:       account,
		AutosaveDelay: cfg.AutosaveDelay,
		PollInterval:  cfg.PollInterval,
	})

	a := &app{
		cfg:        cfg,
		account:    account,
		doc:        doc,
		designs:    designRepo,
		assets:     assets.NewRepository(selector, account, provisioner, cfg.HostingDomain),
		controller: controller,
		ai:         ai.NewProxy(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, credits.NewLedger(selector, cfg.AICredits, credits.DefaultWindow)),
		oauth:      auth.NewHandlers(ctx, cfg, account, controller.SignIn),
		events:     events.NewServer(controller, doc),
	}
	return a
}

func (a *app) router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Content-Length", "X-CSRF-Token", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/project", func(r chi.Router) {
			r.Get("/", projectAPI.HandleState(a.controller))
			r.Get("/document", projectAPI.HandleGetDocument(a.doc))
			r.Put("/document", projectAPI.HandlePutDocument(a.doc))
			r.Post("/save", projectAPI.HandleSave(a.controller))
			r.Post("/new", projectAPI.HandleNew(a.controller))
			r.Post("/duplicate", projectAPI.HandleDuplicate(a.controller))
			r.Post("/load/{id}", projectAPI.HandleLoad(a.controller))
			r.Put("/name", projectAPI.HandleRename(a.controller))
			r.Put("/language", projectAPI.HandleLanguage(a.controller))
		})

		r.Route("/designs", func(r chi.Router) {
			r.Get("/", designsAPI.HandleList(a.designs))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", designsAPI.HandleGet(a.designs))
				r.Delete("/", designsAPI.HandleDelete(a.designs))
				r.Get("/preview", designsAPI.HandlePreview(a.designs))
			})
		})

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", assetsAPI.HandleList(a.assets))
			r.Post("/", assetsAPI.HandleUpload(a.assets))
			r.Delete("/{id}", assetsAPI.HandleDelete(a.assets))
			r.Get("/{id}/url", assetsAPI.HandleURL(a.assets))
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/", accountAPI.HandleGet(a.account))
			r.Post("/signin", accountAPI.HandleSignIn(a.controller))
			r.Post("/signout", accountAPI.HandleSignOut(a.controller))
			r.With(authMiddleware.RequireSignedIn(a.account)).Post("/backup", accountAPI.HandleBackup(a.designs))
		})

		r.Get("/credits/{feature}", a.ai.HandleCredits)
		r.Post("/ai/chat", a.ai.HandleChat)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", a.oauth.HandleLogin)
		r.Get("/callback", a.oauth.HandleCallback)
	})

	r.Handle("/socket.io/", a.events.Handler())
	return r
}

func main() {
	listenAddress := flag.String("listen", ":3002", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	a := newApp(ctx, cfg)
	if err := a.controller.FirstLoad(ctx); err != nil {
		logrus.WithError(err).Warn("First load failed")
	}

	done := make(chan struct{})
	go func() {
		a.controller.Run(ctx)
		close(done)
	}()

	srv := &http.Server{Addr: *listenAddress, Handler: a.router()}
	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.events.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown did not complete")
	}
	<-done

	// Flush an edit that is still waiting for its autosave.
	if a.controller.State().Status == core.StatusHasChanges {
		a.controller.Save(shutdownCtx)
	}
}
