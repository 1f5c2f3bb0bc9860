// Package devserver emulates the TableRAG API in memory so the client can be
// exercised without the Python service. Tasks run on timers; spreadsheets are
// hashed, never parsed.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tablerag/tablerag-client/internal/constants"
	"github.com/tablerag/tablerag-client/internal/logging"
	"github.com/tablerag/tablerag-client/internal/models"
)

const defaultSavePath = "online_inference/embedding.pkl"

// Config configures the emulator.
type Config struct {
	Addr          string
	TaskDuration  time.Duration
	TaskRetention time.Duration // how long finished tasks stay readable
	Dirs          models.Dirs   // server-side defaults for requests that omit them
}

// DefaultConfig listens on the client's default API address.
func DefaultConfig() Config {
	return Config{
		Addr:          constants.DevServerAddr,
		TaskDuration:  constants.DevServerTaskDuration,
		TaskRetention: constants.DevServerTaskRetention,
		Dirs: models.Dirs{
			ExcelDir:          "dataset/dev_excel",
			DocDir:            "dataset/schema",
			BgeDir:            "models/bge-m3",
			EmbeddingSavePath: defaultSavePath,
		},
	}
}

// Server is the emulated API.
type Server struct {
	cfg    Config
	engine *gin.Engine
	queue  *TaskQueue
	store  *Store
	logger *logging.Logger
}

// New builds the routes. Call Close to stop pending tasks.
func New(cfg Config, logger *logging.Logger) *Server {
	if cfg.Dirs.EmbeddingSavePath == "" {
		cfg.Dirs.EmbeddingSavePath = defaultSavePath
	}
	s := &Server{
		cfg:    cfg,
		engine: gin.New(),
		queue:  NewTaskQueue(cfg.TaskDuration, cfg.TaskRetention, logger),
		store:  NewStore(),
		logger: logging.OrNop(logger),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.RegisterRoutes(s.engine)
	return s
}

// Handler returns the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// RegisterRoutes attaches every API route to router.
func (s *Server) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", s.health)

	data := router.Group("/data")
	data.GET("/dirs", s.getDirs)
	data.POST("/import", s.runImport)
	data.POST("/upload", s.upload("file", false))
	data.POST("/upload_many", s.upload("files", false))
	data.POST("/upload_and_rebuild", s.upload("file", true))
	data.POST("/upload_and_rebuild_many", s.upload("files", true))
	data.GET("/tasks/:id", s.getTask)

	router.GET("/tables", s.listTables)

	router.POST("/cleanup", s.cleanup)
	router.GET("/cleanup/tasks/:id", s.getTask)

	router.POST("/embeddings/build", s.buildEmbeddings)
	router.GET("/embeddings/tasks/:id", s.getTask)

	router.POST("/chat/ask", s.ask)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("dev server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("dev server shutdown: %w", err)
	}
	return nil
}

// Close abandons running tasks.
func (s *Server) Close() {
	s.queue.Close()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

// merge fills empty fields of d with the configured defaults.
func (s *Server) merge(d models.Dirs) models.Dirs {
	if d.ExcelDir == "" {
		d.ExcelDir = s.cfg.Dirs.ExcelDir
	}
	if d.DocDir == "" {
		d.DocDir = s.cfg.Dirs.DocDir
	}
	if d.BgeDir == "" {
		d.BgeDir = s.cfg.Dirs.BgeDir
	}
	if d.EmbeddingSavePath == "" {
		d.EmbeddingSavePath = s.cfg.Dirs.EmbeddingSavePath
	}
	return d
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, models.Health{Status: "ok", Version: constants.DevServerVersion})
}

func (s *Server) getDirs(c *gin.Context) {
	c.JSON(http.StatusOK, s.merge(models.Dirs{
		ExcelDir:          c.Query("excel_dir"),
		DocDir:            c.Query("doc_dir"),
		BgeDir:            c.Query("bge_dir"),
		EmbeddingSavePath: c.Query("save_path"),
	}))
}

func (s *Server) getTask(c *gin.Context) {
	rec, ok := s.queue.Get(c.Param("id"))
	if !ok {
		detail(c, http.StatusNotFound, "task not found")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) accepted(c *gin.Context, id string, extra gin.H) {
	body := gin.H{"task_id": id, "status": models.StatusQueued}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) runImport(c *gin.Context) {
	var req models.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		detail(c, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	dirs := s.merge(models.Dirs{ExcelDir: req.ExcelDir})

	id := s.queue.Submit(func(context.Context) (interface{}, error) {
		return s.store.Import(dirs.ExcelDir, dirs.DocDir)
	})
	s.accepted(c, id, nil)
}

func (s *Server) upload(field string, rebuild bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			detail(c, http.StatusUnprocessableEntity, "multipart body required")
			return
		}
		headers := form.File[field]
		if len(headers) == 0 {
			detail(c, http.StatusUnprocessableEntity, fmt.Sprintf("field %q is required", field))
			return
		}

		dirs := s.merge(models.Dirs{
			ExcelDir:          c.PostForm("excel_dir"),
			DocDir:            c.PostForm("doc_dir"),
			BgeDir:            c.PostForm("bge_dir"),
			EmbeddingSavePath: c.PostForm("save_path"),
		})
		policy := models.EmbeddingPolicy(c.PostForm("policy"))
		if policy == "" {
			policy = models.PolicyRebuild
		}
		if !policy.Valid() {
			detail(c, http.StatusBadRequest, fmt.Sprintf("unknown policy %q", policy))
			return
		}

		var saved []string
		for _, fh := range headers {
			if !spreadsheet(fh.Filename) {
				detail(c, http.StatusBadRequest, "Only .xlsx or .xls files are supported")
				return
			}
			data, err := readPart(fh)
			if err != nil {
				detail(c, http.StatusBadRequest, err.Error())
				return
			}
			saved = append(saved, s.store.SaveUpload(dirs.ExcelDir, fh.Filename, data))
		}

		id := s.queue.Submit(func(context.Context) (interface{}, error) {
			result, err := s.store.Import(dirs.ExcelDir, dirs.DocDir)
			if err != nil || !rebuild {
				return result, err
			}
			return s.store.BuildEmbeddings(dirs.EmbeddingSavePath, policy)
		})

		if field == "file" {
			s.accepted(c, id, gin.H{"saved_path": saved[0]})
		} else {
			s.accepted(c, id, gin.H{"saved_paths": saved})
		}
	}
}

func spreadsheet(name string) bool {
	lower := strings.ToLower(path.Base(name))
	return strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) listTables(c *gin.Context) {
	dirs := s.merge(models.Dirs{DocDir: c.Query("doc_dir")})
	metas := s.store.Tables(dirs.DocDir)

	tables := make([]string, 0, len(metas))
	for _, m := range metas {
		tables = append(tables, m.Table)
	}
	body := gin.H{"tables": tables, "count": len(tables), "schema_dir": dirs.DocDir}
	if c.Query("include_meta") == "true" {
		body["meta"] = metas
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) cleanup(c *gin.Context) {
	var req models.CleanupRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Targets) == 0 {
		detail(c, http.StatusUnprocessableEntity, "targets is required")
		return
	}
	docDir := s.cfg.Dirs.DocDir

	id := s.queue.Submit(func(context.Context) (interface{}, error) {
		if !req.Confirmed && !req.DryRun {
			return nil, errors.New("cleanup not confirmed")
		}
		return s.store.Cleanup(docDir, req.Targets, req.DryRun), nil
	})
	s.accepted(c, id, nil)
}

func (s *Server) buildEmbeddings(c *gin.Context) {
	var req models.EmbeddingsRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		detail(c, http.StatusUnprocessableEntity, "invalid request body")
		return
	}
	policy := req.Policy
	if policy == "" {
		policy = models.PolicyRebuild
	}
	if !policy.Valid() {
		detail(c, http.StatusBadRequest, fmt.Sprintf("unknown policy %q", policy))
		return
	}
	dirs := s.merge(models.Dirs{EmbeddingSavePath: req.SavePath})

	id := s.queue.Submit(func(context.Context) (interface{}, error) {
		return s.store.BuildEmbeddings(dirs.EmbeddingSavePath, policy)
	})
	s.accepted(c, id, nil)
}

func (s *Server) ask(c *gin.Context) {
	var q models.ChatQuery
	if err := c.ShouldBindJSON(&q); err != nil || strings.TrimSpace(q.Question) == "" {
		detail(c, http.StatusUnprocessableEntity, "question is required")
		return
	}
	dirs := s.merge(models.Dirs{DocDir: q.DocDir})

	metas := s.store.Tables(dirs.DocDir)
	if len(metas) == 0 {
		detail(c, http.StatusInternalServerError, fmt.Sprintf("no tables registered in %s", dirs.DocDir))
		return
	}

	tableID := q.TableID
	if tableID == "" || tableID == models.DefaultTableID {
		tableID = metas[0].Table
	}
	c.JSON(http.StatusOK, models.ChatAnswer{
		Answer: fmt.Sprintf("%d tables searched; best match %s for %q", len(metas), tableID, strings.TrimSpace(q.Question)),
	})
}
