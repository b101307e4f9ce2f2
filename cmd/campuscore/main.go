package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/campuscore/campuscore/internal/exam"
	"github.com/campuscore/campuscore/internal/grading"
	"github.com/campuscore/campuscore/internal/handler"
	appI18n "github.com/campuscore/campuscore/internal/i18n"
	"github.com/campuscore/campuscore/internal/model"
	"github.com/campuscore/campuscore/internal/store"
	"github.com/campuscore/campuscore/internal/transcript"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "campuscore",
		Short: "Assessment and grading engine for college administration",
	}

	serve := serveCmd()
	root.AddCommand(serve, transcriptCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `campuscore --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP assessment server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "campuscore.db", "SQLite database path")
	f.StringSliceP("exams", "e", nil, "Paths to exam JSON files (repeatable)")
	f.StringP("lang", "l", "en", "Message language (en, ru)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /api)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Initial admin password (or set CAMPUSCORE_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func transcriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Export a student's transcript as JSON",
		RunE:  runTranscript,
	}
	f := cmd.Flags()
	f.String("db", "campuscore.db", "SQLite database path")
	f.Int64("student", 0, "Student identifier (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("student")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CAMPUSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("campuscore")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/campuscore")
	v.AddConfigPath("/etc/campuscore")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// buildScale reads the grade scale from config, falling back to the
// standard 4.0 scale.
func buildScale(v *viper.Viper) (*grading.Scale, error) {
	if !v.IsSet("grade_scale") {
		return grading.DefaultScale(), nil
	}
	var bands []grading.Band
	if err := v.UnmarshalKey("grade_scale", &bands); err != nil {
		return nil, fmt.Errorf("parse grade_scale: %w", err)
	}
	return grading.NewScale(bands)
}

// buildTranscriptBuilder reads standing thresholds and term ordering from
// config, falling back to the defaults.
func buildTranscriptBuilder(v *viper.Viper) (*transcript.Builder, error) {
	b := transcript.NewBuilder()
	if v.IsSet("standing") {
		var bands []transcript.StandingBand
		if err := v.UnmarshalKey("standing", &bands); err != nil {
			return nil, fmt.Errorf("parse standing: %w", err)
		}
		b.Standing = bands
	}
	if v.IsSet("term_order") {
		order := map[string]int{}
		if err := v.UnmarshalKey("term_order", &order); err != nil {
			return nil, fmt.Errorf("parse term_order: %w", err)
		}
		b.TermOrder = order
	}
	return b, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("cleanup expired auth sessions", "error", err)
	}

	if err := loadExams(db, v.GetStringSlice("exams")); err != nil {
		return fmt.Errorf("load exams: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	scale, err := buildScale(v)
	if err != nil {
		return fmt.Errorf("build grade scale: %w", err)
	}
	builder, err := buildTranscriptBuilder(v)
	if err != nil {
		return fmt.Errorf("build transcript builder: %w", err)
	}

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	proctor := exam.NewProctor()

	h, err := handler.New(db, proctor, scale, builder, handler.Config{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			h.Routes(sub)
		})
	} else {
		h.Routes(r)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The proctor is the single loop ticking every live exam session.
	go proctor.Run(ctx)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "lang", lang, "base_path", basePath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}

func runTranscript(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	builder, err := buildTranscriptBuilder(v)
	if err != nil {
		return fmt.Errorf("build transcript builder: %w", err)
	}

	studentID := v.GetInt64("student")
	results, err := db.ListCourseGradeResults(studentID)
	if err != nil {
		return fmt.Errorf("list course grade results: %w", err)
	}

	var complete []model.CourseGradeResult
	for _, res := range results {
		if res.IsComplete {
			complete = append(complete, res)
		}
	}

	ts := builder.Generate(studentID, complete, time.Now())

	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func loadExams(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("exams file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("exams file changed since last import, skipping to avoid breaking existing sessions",
				"path", path)
			continue
		}

		var imports []model.ExamImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for i, ei := range imports {
			ex, err := ei.Exam()
			if err != nil {
				return fmt.Errorf("exam %d in %s: %w", i+1, path, err)
			}
			if _, err := db.CreateExam(ex); err != nil {
				return fmt.Errorf("insert exam from %s: %w", path, err)
			}
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported exams", "path", path, "count", len(imports))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or CAMPUSCORE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
