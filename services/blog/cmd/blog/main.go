package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/config"
	"github.com/example/blog-platform/internal/platform/db"
	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/internal/platform/httpserver"
	"github.com/example/blog-platform/internal/platform/logging"
	"github.com/example/blog-platform/internal/platform/natsconn"
	"github.com/example/blog-platform/internal/platform/run"
	"github.com/example/blog-platform/services/blog/internal/cache"
	"github.com/example/blog-platform/services/blog/internal/handlers"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	posts, comments, pool := initStores(log, cfg)
	if pool != nil {
		defer pool.Close()
	}

	threadCache := initThreadCache(log)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	verifier := auth.JWTVerifier{Secret: []byte(jwtSecret)}

	// NATS is optional: without it events are dropped and views stay flat.
	var pub *events.Publisher
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
	} else {
		js, err := natsconn.JetStream(nc)
		if err != nil {
			log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		} else {
			pub = events.New(js, log)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: readiness(pool)})

	// Public reads.
	r.Get("/v1/posts", handlers.ListPosts(posts))
	r.Get("/v1/posts/{post_id}", handlers.GetPost(posts, pub))
	r.Get("/v1/posts/slug/{slug}", handlers.GetPostBySlug(posts, pub))
	r.Get("/v1/posts/{post_id}/comments", handlers.GetThread(comments, threadCache))
	r.Get("/v1/users/{user_id}/comments", handlers.ListUserComments(comments))
	r.Get("/v1/users/{user_id}/posts", handlers.ListUserPosts(posts))

	// Authenticated writes.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))

		r.Post("/v1/posts", handlers.CreatePost(posts))
		r.Put("/v1/posts/{post_id}", handlers.UpdatePost(posts))
		r.Post("/v1/posts/{post_id}/publish", handlers.PublishPost(posts))
		r.Post("/v1/posts/{post_id}/archive", handlers.ArchivePost(posts))
		r.Delete("/v1/posts/{post_id}", handlers.DeletePost(posts))
		r.Post("/v1/posts/{post_id}/like", handlers.TogglePostLike(posts))

		r.Post("/v1/posts/{post_id}/comments", handlers.CreateComment(comments, pub, threadCache))
		r.Put("/v1/comments/{comment_id}", handlers.UpdateComment(comments, threadCache))
		r.Delete("/v1/comments/{comment_id}", handlers.DeleteComment(comments, pub, threadCache))
		r.Post("/v1/comments/{comment_id}/like", handlers.ToggleCommentLike(comments, threadCache))
		r.Post("/v1/comments/{comment_id}/report", handlers.ReportComment(comments, pub, threadCache))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireModerator)
			r.Get("/v1/comments/{comment_id}/reports", handlers.ListReports(comments))
			r.Post("/v1/comments/{comment_id}/moderate", handlers.ModerateComment(comments, pub, threadCache))
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Delete("/v1/comments/{comment_id}/hard", handlers.HardDeleteComment(comments, threadCache))
		})
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			defer nc.Close()
			var marker worker.EventMarker
			if pool != nil {
				marker = &worker.PostgresEventMarker{Pool: pool}
			}
			worker.StartViewsConsumer(ctx, nc, posts, marker)
		}

		go runner.Graceful(ctx, srv.Shutdown)
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// initStores selects the storage backend. In production (APP_ENV=production)
// Postgres is mandatory; development falls back to the in-memory stores.
func initStores(log *zap.Logger, cfg config.AppConfig) (store.PostStore, store.CommentStore, *pgxpool.Pool) {
	memory := func(reason string, err error) (store.PostStore, store.CommentStore, *pgxpool.Pool) {
		if cfg.Production() {
			log.Error("postgres is required in production: "+reason, zap.Error(err))
			_ = log.Sync()
			os.Exit(1)
		}
		log.Warn("using in-memory stores (development only): "+reason, zap.Error(err))
		posts := store.NewInMemoryPostStore()
		return posts, store.NewInMemoryCommentStore(posts), nil
	}

	if strings.TrimSpace(os.Getenv("DATABASE_URL")) == "" {
		return memory("DATABASE_URL not set", nil)
	}

	pool, err := db.Open(context.Background())
	if err != nil {
		return memory("connect failed", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return memory("ping failed", err)
	}

	log.Info("stores: postgres")
	return store.NewPostgresPostStore(pool), store.NewPostgresCommentStore(pool), pool
}

// initThreadCache wires the Redis thread cache when REDIS_URL is set. The
// nil cache is a no-op, so every caller can ignore the difference.
func initThreadCache(log *zap.Logger) *cache.ThreadCache {
	url := strings.TrimSpace(os.Getenv("REDIS_URL"))
	if url == "" {
		log.Warn("REDIS_URL not set, thread cache disabled")
		return nil
	}
	ttl := 30 * time.Second
	tc, err := cache.NewThreadCache(url, ttl)
	if err != nil {
		log.Warn("redis unavailable, thread cache disabled", zap.Error(err))
		return nil
	}
	log.Info("thread cache: redis", zap.Duration("ttl", ttl))
	return tc
}

func readiness(pool *pgxpool.Pool) func() error {
	if pool == nil {
		return nil
	}
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return pool.Ping(ctx)
	}
}
