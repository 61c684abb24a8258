package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/proctorly/proctord/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL,
		duration INTEGER NOT NULL,
		start_time DATETIME,
		end_time DATETIME,
		max_attempts INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'DRAFT',
		settings TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (created_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		type TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT NOT NULL DEFAULT '',
		points REAL NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (created_by) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_questions (
		exam_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		enrolled_at DATETIME NOT NULL,
		PRIMARY KEY (exam_id, student_id),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		status TEXT NOT NULL DEFAULT 'IN_PROGRESS',
		time_spent INTEGER NOT NULL DEFAULT 0,
		score REAL,
		metadata TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS answers (
		attempt_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		value TEXT NOT NULL,
		is_correct INTEGER,
		points_awarded REAL,
		time_spent INTEGER NOT NULL DEFAULT 0,
		flagged_for_review INTEGER NOT NULL DEFAULT 0,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (attempt_id, question_id),
		FOREIGN KEY (attempt_id) REFERENCES attempts(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		attempt_id TEXT NOT NULL UNIQUE,
		student_id TEXT NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		total_points REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'PENDING',
		plagiarism_percent REAL,
		plagiarism_details TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		graded_by TEXT,
		graded_at DATETIME,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES attempts(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS monitoring_events (
		id TEXT PRIMARY KEY,
		exam_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		attempt_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		severity TEXT NOT NULL DEFAULT 'LOW',
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		changes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// newID returns a fresh uuid string for a primary key.
func newID() string {
	return uuid.NewString()
}

// CreateExam inserts an exam and assigns its ordered question list.
func (s *Store) CreateExam(e model.Exam, questionIDs []string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if e.ID == "" {
		e.ID = newID()
	}
	settings, err := json.Marshal(e.Settings)
	if err != nil {
		return "", err
	}
	_, err = tx.Exec(
		`INSERT INTO exams (id, title, description, created_by, duration, start_time, end_time, max_attempts, status, settings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.CreatedBy, e.Duration, e.StartTime, e.EndTime,
		e.MaxAttempts, e.Status, string(settings), time.Now(),
	)
	if err != nil {
		return "", err
	}
	if err := insertExamQuestions(tx, e.ID, questionIDs); err != nil {
		return "", err
	}
	return e.ID, tx.Commit()
}

// GetExam returns an exam by ID.
func (s *Store) GetExam(id string) (model.Exam, error) {
	var (
		e        model.Exam
		settings string
	)
	err := s.db.QueryRow(
		`SELECT id, title, description, created_by, duration, start_time, end_time, max_attempts, status, settings, created_at
		 FROM exams WHERE id = ?`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.CreatedBy, &e.Duration, &e.StartTime, &e.EndTime,
		&e.MaxAttempts, &e.Status, &settings, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &e.Settings); err != nil {
			return e, fmt.Errorf("parse exam settings: %w", err)
		}
	}
	return e, nil
}

// UpdateExam replaces an exam's definition and, when questionIDs is non-nil,
// its question list.
func (s *Store) UpdateExam(e model.Exam, questionIDs []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	settings, err := json.Marshal(e.Settings)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`UPDATE exams SET title = ?, description = ?, duration = ?, start_time = ?, end_time = ?, max_attempts = ?, settings = ?
		 WHERE id = ?`,
		e.Title, e.Description, e.Duration, e.StartTime, e.EndTime, e.MaxAttempts, string(settings), e.ID,
	)
	if err != nil {
		return err
	}
	if questionIDs != nil {
		if _, err := tx.Exec(`DELETE FROM exam_questions WHERE exam_id = ?`, e.ID); err != nil {
			return err
		}
		if err := insertExamQuestions(tx, e.ID, questionIDs); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertExamQuestions(tx *sql.Tx, examID string, questionIDs []string) error {
	for i, qID := range questionIDs {
		_, err := tx.Exec(
			`INSERT INTO exam_questions (exam_id, question_id, position) VALUES (?, ?, ?)`,
			examID, qID, i,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteExam removes an exam with its question assignments and enrollments.
func (s *Store) DeleteExam(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM exam_questions WHERE exam_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM enrollments WHERE exam_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exams WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// SetExamStatus updates the exam lifecycle status.
func (s *Store) SetExamStatus(id string, status model.ExamStatus) error {
	_, err := s.db.Exec(`UPDATE exams SET status = ? WHERE id = ?`, status, id)
	return err
}

// ListExamsByCreator returns all exams created by a user, newest first.
func (s *Store) ListExamsByCreator(userID string) ([]model.Exam, error) {
	return s.listExams(`SELECT id FROM exams WHERE created_by = ? ORDER BY created_at DESC`, userID)
}

// ListExamsForStudent returns startable exams the student is enrolled in.
func (s *Store) ListExamsForStudent(studentID string) ([]model.Exam, error) {
	return s.listExams(
		`SELECT e.id FROM exams e
		 JOIN enrollments en ON en.exam_id = e.id
		 WHERE en.student_id = ? AND e.status IN ('PUBLISHED', 'ONGOING')
		 ORDER BY e.created_at DESC`, studentID)
}

func (s *Store) listExams(query string, args ...any) ([]model.Exam, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var exams []model.Exam
	for _, id := range ids {
		e, err := s.GetExam(id)
		if err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, nil
}

// GetExamQuestions returns an exam's questions in assignment order.
func (s *Store) GetExamQuestions(examID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT q.id, q.title, q.prompt, q.type, q.options, q.correct_answer, q.points, q.created_by, q.created_at
		 FROM exam_questions eq
		 JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = ?
		 ORDER BY eq.position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

// CreateQuestion inserts a question.
func (s *Store) CreateQuestion(q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = newID()
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (id, title, prompt, type, options, correct_answer, points, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Title, q.Prompt, q.Type, string(options), q.CorrectAnswer, q.Points, q.CreatedBy, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	var (
		q       model.Question
		options string
	)
	err := s.db.QueryRow(
		`SELECT id, title, prompt, type, options, correct_answer, points, created_by, created_at
		 FROM questions WHERE id = ?`, id,
	).Scan(&q.ID, &q.Title, &q.Prompt, &q.Type, &options, &q.CorrectAnswer, &q.Points, &q.CreatedBy, &q.CreatedAt)
	if err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("parse question options: %w", err)
	}
	return q, nil
}

// ListQuestionsByCreator returns all questions created by a user.
func (s *Store) ListQuestionsByCreator(userID string) ([]model.Question, error) {
	rows, err := s.db.Query(
		`SELECT id, title, prompt, type, options, correct_answer, points, created_by, created_at
		 FROM questions WHERE created_by = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	var questions []model.Question
	for rows.Next() {
		var (
			q       model.Question
			options string
		)
		if err := rows.Scan(&q.ID, &q.Title, &q.Prompt, &q.Type, &options, &q.CorrectAnswer,
			&q.Points, &q.CreatedBy, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("parse question options: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// UpdateQuestion replaces a question's content.
func (s *Store) UpdateQuestion(q model.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`UPDATE questions SET title = ?, prompt = ?, type = ?, options = ?, correct_answer = ?, points = ?
		 WHERE id = ?`,
		q.Title, q.Prompt, q.Type, string(options), q.CorrectAnswer, q.Points, q.ID,
	)
	return err
}

// DeleteQuestion removes a question.
func (s *Store) DeleteQuestion(id string) error {
	_, err := s.db.Exec(`DELETE FROM questions WHERE id = ?`, id)
	return err
}

// QuestionReferenced reports whether a question is assigned to any exam or
// has stored answers.
func (s *Store) QuestionReferenced(id string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT (SELECT COUNT(*) FROM exam_questions WHERE question_id = ?) +
		        (SELECT COUNT(*) FROM answers WHERE question_id = ?)`, id, id,
	).Scan(&count)
	return count > 0, err
}

// Enroll registers a student for an exam. Enrolling twice is a no-op.
func (s *Store) Enroll(examID, studentID string) error {
	_, err := s.db.Exec(
		`INSERT INTO enrollments (exam_id, student_id, enrolled_at) VALUES (?, ?, ?)
		 ON CONFLICT(exam_id, student_id) DO NOTHING`,
		examID, studentID, time.Now(),
	)
	return err
}

// IsEnrolled reports whether a student is enrolled in an exam.
func (s *Store) IsEnrolled(examID, studentID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM enrollments WHERE exam_id = ? AND student_id = ?`,
		examID, studentID,
	).Scan(&count)
	return count > 0, err
}
