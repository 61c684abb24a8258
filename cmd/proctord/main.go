package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/proctorly/proctord/internal/assist"
	"github.com/proctorly/proctord/internal/exam"
	"github.com/proctorly/proctord/internal/handler"
	"github.com/proctorly/proctord/internal/model"
	"github.com/proctorly/proctord/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "proctord",
		Short: "Proctored online examination server",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), seedCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `proctord --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "proctord.db", "SQLite database path")
	f.String("assist-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL for the review assistant")
	f.String("assist-key", "", "API key for the review assistant (empty disables it)")
	f.String("assist-model", "llama3.2", "Model name for the review assistant")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	f.String("admin-email", "admin@localhost", "Initial admin email")
	f.String("admin-password", "", "Initial admin password (or set PROCTORD_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export exam results as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "proctord.db", "SQLite database path")
	f.String("exam-id", "", "Exam ID to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the initial admin plus demo users, questions and a published exam",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "proctord.db", "SQLite database path")
	f.String("admin-email", "admin@localhost", "Initial admin email")
	f.String("admin-password", "", "Initial admin password (or set PROCTORD_ADMIN_PASSWORD)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
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

	v.SetEnvPrefix("PROCTORD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("proctord")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/proctord")
	v.AddConfigPath("/etc/proctord")
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

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed the initial admin user if the database is empty.
	if err := seedAdmin(db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	// The review assistant is optional; skip it when no API key is given.
	var assistClient *assist.Client
	if key := v.GetString("assist-key"); key != "" {
		assistClient = assist.New(v.GetString("assist-url"), key, v.GetString("assist-model"))
		if err := assistClient.Ping(context.Background()); err != nil {
			return fmt.Errorf("assist health check: %w", err)
		}
		slog.Info("review assistant OK", "url", v.GetString("assist-url"), "model", v.GetString("assist-model"))
	}

	svc := exam.NewService(db)
	h := handler.New(db, svc, assistClient, handler.Config{
		SecureCookies: v.GetBool("secure-cookies"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"assist_enabled", assistClient != nil,
	)
	return http.ListenAndServe(addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportExamResults(v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam results: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
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

func runSeed(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdmin(db, v.GetString("admin-email"), v.GetString("admin-password")); err != nil {
		return err
	}
	return seedDemo(db)
}

// seedDemo populates a fresh database with demo accounts, a question bank
// and a published exam ready to be taken. It is a no-op when the demo
// teacher already exists.
func seedDemo(db *store.Store) error {
	if existing, err := db.GetUserByEmail("teacher@example.com"); err != nil {
		return err
	} else if existing != nil {
		slog.Info("demo data already present, skipping")
		return nil
	}

	teacherHash, err := bcrypt.GenerateFromPassword([]byte("teacher123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}
	studentHash, err := bcrypt.GenerateFromPassword([]byte("student123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash student password: %w", err)
	}

	teacherID, err := db.CreateUser(model.User{
		Email:        "teacher@example.com",
		Name:         "Prof. Sarah Johnson",
		PasswordHash: string(teacherHash),
		Role:         model.RoleTeacher,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create demo teacher: %w", err)
	}
	var studentIDs []string
	for _, s := range []struct{ email, name string }{
		{"student1@example.com", "John Smith"},
		{"student2@example.com", "Emma Davis"},
	} {
		id, err := db.CreateUser(model.User{
			Email:        s.email,
			Name:         s.name,
			PasswordHash: string(studentHash),
			Role:         model.RoleStudent,
			Active:       true,
		})
		if err != nil {
			return fmt.Errorf("create demo student %s: %w", s.email, err)
		}
		studentIDs = append(studentIDs, id)
	}

	// A small question bank; the first four make up the demo exam.
	bank := []model.Question{
		{Title: "JavaScript Variables", Type: model.TypeMCQ,
			Prompt:  "Which keyword is used to declare a constant in JavaScript?",
			Options: []string{"var", "let", "const", "static"}, CorrectAnswer: "2", Points: 1},
		{Title: "Array Methods", Type: model.TypeMCQ,
			Prompt:  "Which method adds an element to the end of an array?",
			Options: []string{"push()", "pop()", "shift()", "unshift()"}, CorrectAnswer: "0", Points: 1},
		{Title: "Async JavaScript", Type: model.TypeMCQ,
			Prompt:  "Which of the following is used to handle asynchronous operations in JavaScript?",
			Options: []string{"Callbacks", "Promises", "Async/Await", "All of the above"}, CorrectAnswer: "3", Points: 2},
		{Title: "Explain Closures", Type: model.TypeShortAnswer,
			Prompt: "Explain what a closure is in JavaScript with an example.", Points: 5},
		{Title: "Math Operations", Type: model.TypeMCQ,
			Prompt:  "What is 12 + 15?",
			Options: []string{"25", "27", "28", "30"}, CorrectAnswer: "1", Points: 1},
		{Title: "Calculus", Type: model.TypeMCQ,
			Prompt:  "What is the derivative of x^2?",
			Options: []string{"x", "2x", "x^2", "2"}, CorrectAnswer: "1", Points: 1},
		{Title: "Chemistry Basics", Type: model.TypeMCQ,
			Prompt:  "What is the chemical formula for water?",
			Options: []string{"H2O", "O2", "CO2", "NaCl"}, CorrectAnswer: "0", Points: 1},
		{Title: "US History", Type: model.TypeMCQ,
			Prompt:  "Who was the first President of the USA?",
			Options: []string{"Abraham Lincoln", "John Adams", "George Washington", "Thomas Jefferson"}, CorrectAnswer: "2", Points: 1},
		{Title: "Data Structures", Type: model.TypeMCQ,
			Prompt:  "Which data structure uses FIFO (First In First Out)?",
			Options: []string{"Stack", "Queue", "Tree", "Graph"}, CorrectAnswer: "1", Points: 1},
	}
	var examQuestionIDs []string
	for i, q := range bank {
		q.CreatedBy = teacherID
		id, err := db.CreateQuestion(q)
		if err != nil {
			return fmt.Errorf("create demo question %q: %w", q.Title, err)
		}
		if i < 4 {
			examQuestionIDs = append(examQuestionIDs, id)
		}
	}

	now := time.Now()
	endTime := now.Add(7 * 24 * time.Hour)
	examID, err := db.CreateExam(model.Exam{
		Title:       "JavaScript Fundamentals Test",
		Description: "A comprehensive test covering basic to intermediate JavaScript concepts.",
		CreatedBy:   teacherID,
		Duration:    30,
		StartTime:   &now,
		EndTime:     &endTime,
		MaxAttempts: 2,
		Status:      model.ExamPublished,
		Settings: model.ExamSettings{
			ShuffleQuestions:  true,
			RequireProctoring: true,
		},
	}, examQuestionIDs)
	if err != nil {
		return fmt.Errorf("create demo exam: %w", err)
	}
	for _, studentID := range studentIDs {
		if err := db.Enroll(examID, studentID); err != nil {
			return fmt.Errorf("enroll demo student: %w", err)
		}
	}

	slog.Info("seeded demo data",
		"teacher", "teacher@example.com",
		"students", "student1@example.com, student2@example.com",
		"exam", "JavaScript Fundamentals Test",
	)
	return nil
}

func seedAdmin(db *store.Store, email, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or PROCTORD_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Email:        email,
		Name:         "Administrator",
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded initial admin user", "email", email)
	return nil
}
