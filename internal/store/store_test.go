package store

import (
	"testing"
	"time"

	"github.com/proctorly/proctord/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, email string, role model.UserRole) string {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Email:        email,
		Name:         "Test " + email,
		PasswordHash: "x",
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func insertTestQuestion(t *testing.T, s *Store, creator string, qtype model.QuestionType, correct string, points float64) string {
	t.Helper()
	id, err := s.CreateQuestion(model.Question{
		Prompt:        "prompt",
		Type:          qtype,
		Options:       []string{"1", "2", "3", "4"},
		CorrectAnswer: correct,
		Points:        points,
		CreatedBy:     creator,
	})
	if err != nil {
		t.Fatalf("insertTestQuestion: %v", err)
	}
	return id
}

func insertTestExam(t *testing.T, s *Store, creator string, questionIDs []string) string {
	t.Helper()
	id, err := s.CreateExam(model.Exam{
		Title:       "Midterm",
		CreatedBy:   creator,
		Duration:    30,
		MaxAttempts: 1,
		Status:      model.ExamPublished,
	}, questionIDs)
	if err != nil {
		t.Fatalf("insertTestExam: %v", err)
	}
	return id
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := insertTestUser(t, s, "alice@example.com", model.RoleStudent)

	u, err := s.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("expected user %s, got %+v", id, u)
	}
	if u.Role != model.RoleStudent {
		t.Errorf("expected role STUDENT, got %q", u.Role)
	}

	// Duplicate email must be rejected.
	if _, err := s.CreateUser(model.User{Email: "alice@example.com", Name: "Dup", PasswordHash: "x", Role: model.RoleStudent}); err == nil {
		t.Error("expected duplicate email to fail")
	}

	missing, err := s.GetUserByEmail("nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, err = s.GetUserByID(id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Active {
		t.Error("expected user inactive after toggle")
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	uid := insertTestUser(t, s, "bob@example.com", model.RoleTeacher)

	token, err := s.CreateAuthSession(uid)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != uid {
		t.Fatalf("expected session for %s, got %+v", uid, sess)
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after delete: %v", err)
	}
	if sess != nil {
		t.Error("expected deleted session to be gone")
	}
}

func TestExamCRUDAndEnrollment(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)

	q1 := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	q2 := insertTestQuestion(t, s, teacher, model.TypeShortAnswer, "", 5)
	examID := insertTestExam(t, s, teacher, []string{q1, q2})

	exam, err := s.GetExam(examID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if exam.Title != "Midterm" || exam.Duration != 30 {
		t.Errorf("unexpected exam: %+v", exam)
	}

	qs, err := s.GetExamQuestions(examID)
	if err != nil {
		t.Fatalf("GetExamQuestions: %v", err)
	}
	if len(qs) != 2 || qs[0].ID != q1 || qs[1].ID != q2 {
		t.Fatalf("expected questions in assignment order, got %+v", qs)
	}

	enrolled, err := s.IsEnrolled(examID, student)
	if err != nil {
		t.Fatalf("IsEnrolled: %v", err)
	}
	if enrolled {
		t.Error("expected not enrolled before Enroll")
	}
	if err := s.Enroll(examID, student); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	// Second enroll is a no-op, not an error.
	if err := s.Enroll(examID, student); err != nil {
		t.Fatalf("Enroll twice: %v", err)
	}
	enrolled, err = s.IsEnrolled(examID, student)
	if err != nil {
		t.Fatalf("IsEnrolled: %v", err)
	}
	if !enrolled {
		t.Error("expected enrolled after Enroll")
	}

	visible, err := s.ListExamsForStudent(student)
	if err != nil {
		t.Fatalf("ListExamsForStudent: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != examID {
		t.Fatalf("expected student to see exam, got %+v", visible)
	}

	if err := s.SetExamStatus(examID, model.ExamArchived); err != nil {
		t.Fatalf("SetExamStatus: %v", err)
	}
	visible, err = s.ListExamsForStudent(student)
	if err != nil {
		t.Fatalf("ListExamsForStudent: %v", err)
	}
	if len(visible) != 0 {
		t.Errorf("archived exam should not be visible, got %+v", visible)
	}
}

func TestQuestionReferenced(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	q1 := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	q2 := insertTestQuestion(t, s, teacher, model.TypeMCQ, "3", 5)
	insertTestExam(t, s, teacher, []string{q1})

	ref, err := s.QuestionReferenced(q1)
	if err != nil {
		t.Fatalf("QuestionReferenced: %v", err)
	}
	if !ref {
		t.Error("expected q1 referenced")
	}
	ref, err = s.QuestionReferenced(q2)
	if err != nil {
		t.Fatalf("QuestionReferenced: %v", err)
	}
	if ref {
		t.Error("expected q2 unreferenced")
	}
}

func TestAttemptLifecycle(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})

	found, err := s.FindInProgressAttempt(examID, student)
	if err != nil {
		t.Fatalf("FindInProgressAttempt: %v", err)
	}
	if found != nil {
		t.Fatalf("expected no attempt, got %+v", found)
	}

	attemptID, err := s.CreateAttempt(model.Attempt{
		ExamID:    examID,
		StudentID: student,
		StartTime: time.Now(),
		Status:    model.AttemptInProgress,
	})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	found, err = s.FindInProgressAttempt(examID, student)
	if err != nil {
		t.Fatalf("FindInProgressAttempt: %v", err)
	}
	if found == nil || found.ID != attemptID {
		t.Fatalf("expected attempt %s, got %+v", attemptID, found)
	}

	count, err := s.CountAttempts(examID, student)
	if err != nil {
		t.Fatalf("CountAttempts: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 attempt, got %d", count)
	}

	ok, err := s.FinishAttempt(attemptID, model.AttemptSubmitted, time.Now(), 120, 5)
	if err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if !ok {
		t.Fatal("expected first FinishAttempt to succeed")
	}

	// A finished attempt cannot be finished again: the conditional update
	// reports no rows changed, which is how the caller detects the race loser.
	ok, err = s.FinishAttempt(attemptID, model.AttemptSubmitted, time.Now(), 121, 5)
	if err != nil {
		t.Fatalf("FinishAttempt second call: %v", err)
	}
	if ok {
		t.Fatal("expected second FinishAttempt to report no transition")
	}

	at, err := s.GetAttempt(attemptID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if at.Status != model.AttemptSubmitted {
		t.Errorf("expected SUBMITTED, got %q", at.Status)
	}
	if at.TimeSpent != 120 {
		t.Errorf("expected time_spent from first finish, got %d", at.TimeSpent)
	}
	if at.Score == nil || *at.Score != 5 {
		t.Errorf("expected score 5, got %v", at.Score)
	}
}

func TestCountAttemptsExcludesAbandoned(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})

	for _, status := range []model.AttemptStatus{model.AttemptSubmitted, model.AttemptTerminated, model.AttemptAbandoned} {
		id, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: student, StartTime: time.Now(), Status: model.AttemptInProgress})
		if err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
		if _, err := s.FinishAttempt(id, status, time.Now(), 10, 0); err != nil {
			t.Fatalf("FinishAttempt: %v", err)
		}
	}

	count, err := s.CountAttempts(examID, student)
	if err != nil {
		t.Fatalf("CountAttempts: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected abandoned attempt excluded from count, got %d", count)
	}
}

func TestAnswerUpsert(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})
	attemptID, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: student, StartTime: time.Now(), Status: model.AttemptInProgress})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.UpsertAnswer(model.Answer{AttemptID: attemptID, QuestionID: q, Value: "1", TimeSpent: 10}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	// Saving again for the same question replaces the row.
	if err := s.UpsertAnswer(model.Answer{AttemptID: attemptID, QuestionID: q, Value: "2", TimeSpent: 25, FlaggedForReview: true}); err != nil {
		t.Fatalf("UpsertAnswer replace: %v", err)
	}

	answers, err := s.ListAnswers(attemptID)
	if err != nil {
		t.Fatalf("ListAnswers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("expected 1 answer row, got %d", len(answers))
	}
	if answers[0].Value != "2" {
		t.Errorf("expected latest value %q, got %v", "2", answers[0].Value)
	}
	if answers[0].TimeSpent != 25 || !answers[0].FlaggedForReview {
		t.Errorf("expected replaced metadata, got %+v", answers[0])
	}

	if err := s.UpdateAnswerPoints(attemptID, q, 5); err != nil {
		t.Fatalf("UpdateAnswerPoints: %v", err)
	}
	a, err := s.GetAnswer(attemptID, q)
	if err != nil {
		t.Fatalf("GetAnswer: %v", err)
	}
	if a.PointsAwarded == nil || *a.PointsAwarded != 5 {
		t.Errorf("expected 5 points, got %v", a.PointsAwarded)
	}
	if a.IsCorrect == nil || !*a.IsCorrect {
		t.Errorf("expected is_correct derived from points, got %v", a.IsCorrect)
	}

	missing, err := s.GetAnswer(attemptID, "no-such-question")
	if err != nil {
		t.Fatalf("GetAnswer missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing answer, got %+v", missing)
	}
}

func TestFreeTextsByAttempt(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	alice := insertTestUser(t, s, "alice@example.com", model.RoleStudent)
	bob := insertTestUser(t, s, "bob@example.com", model.RoleStudent)
	carol := insertTestUser(t, s, "carol@example.com", model.RoleStudent)

	essay := insertTestQuestion(t, s, teacher, model.TypeEssay, "", 10)
	mcq := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{essay, mcq})

	submit := func(student, text string) {
		t.Helper()
		id, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: student, StartTime: time.Now(), Status: model.AttemptInProgress})
		if err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
		if err := s.UpsertAnswer(model.Answer{AttemptID: id, QuestionID: essay, Value: text}); err != nil {
			t.Fatalf("UpsertAnswer: %v", err)
		}
		if err := s.UpsertAnswer(model.Answer{AttemptID: id, QuestionID: mcq, Value: "2"}); err != nil {
			t.Fatalf("UpsertAnswer: %v", err)
		}
		if _, err := s.FinishAttempt(id, model.AttemptSubmitted, time.Now(), 60, 0); err != nil {
			t.Fatalf("FinishAttempt: %v", err)
		}
	}

	submit(alice, "the quick brown fox")
	submit(bob, "a completely different essay")

	// Carol's attempt is still in progress and must be invisible.
	carolAttempt, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: carol, StartTime: time.Now(), Status: model.AttemptInProgress})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s.UpsertAnswer(model.Answer{AttemptID: carolAttempt, QuestionID: essay, Value: "work in progress"}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}

	texts, err := s.FreeTextsByAttempt(examID, []string{essay}, alice)
	if err != nil {
		t.Fatalf("FreeTextsByAttempt: %v", err)
	}
	if len(texts) != 1 {
		t.Fatalf("expected only bob's attempt, got %d", len(texts))
	}
	if texts[0].Text != "a completely different essay" {
		t.Errorf("unexpected text %q", texts[0].Text)
	}

	// MCQ answers never enter the comparison corpus.
	texts, err = s.FreeTextsByAttempt(examID, []string{mcq}, "")
	if err != nil {
		t.Fatalf("FreeTextsByAttempt mcq: %v", err)
	}
	for _, txt := range texts {
		if txt.Text == "the quick brown fox" {
			t.Errorf("essay text leaked into mcq query: %+v", texts)
		}
	}
}

func TestSubmissionPerAttempt(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})
	attemptID, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: student, StartTime: time.Now(), Status: model.AttemptInProgress})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	subID, err := s.CreateSubmission(model.Submission{
		AttemptID:   attemptID,
		StudentID:   student,
		Score:       5,
		TotalPoints: 5,
		Status:      model.GradingGraded,
	})
	if err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	// attempt_id is unique: a second submission for the attempt must fail.
	if _, err := s.CreateSubmission(model.Submission{AttemptID: attemptID, StudentID: student, Status: model.GradingPending}); err == nil {
		t.Fatal("expected second submission for attempt to fail")
	}

	sub, err := s.GetSubmissionByAttempt(attemptID)
	if err != nil {
		t.Fatalf("GetSubmissionByAttempt: %v", err)
	}
	if sub == nil || sub.ID != subID {
		t.Fatalf("expected submission %s, got %+v", subID, sub)
	}
	if sub.Score != 5 || sub.Status != model.GradingGraded {
		t.Errorf("unexpected submission: %+v", sub)
	}

	gradedAt := time.Now()
	if err := s.UpdateSubmissionGrade(subID, 4, model.GradingGraded, "partial credit", teacher, gradedAt); err != nil {
		t.Fatalf("UpdateSubmissionGrade: %v", err)
	}
	sub2, err := s.GetSubmission(subID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub2.Score != 4 || sub2.Feedback != "partial credit" {
		t.Errorf("expected revised grade, got %+v", sub2)
	}
	if sub2.GradedBy == nil || *sub2.GradedBy != teacher {
		t.Errorf("expected graded_by %s, got %v", teacher, sub2.GradedBy)
	}
	if sub2.GradedAt == nil {
		t.Error("expected graded_at set")
	}

	listed, err := s.ListSubmissionsByExam(examID)
	if err != nil {
		t.Fatalf("ListSubmissionsByExam: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != subID {
		t.Fatalf("expected 1 submission for exam, got %+v", listed)
	}
}

func TestMonitoringEvents(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})

	if _, err := s.InsertMonitoringEvent(model.MonitoringEvent{
		ExamID:      examID,
		StudentID:   student,
		Type:        model.EventExamStarted,
		Description: "attempt started",
	}); err != nil {
		t.Fatalf("InsertMonitoringEvent: %v", err)
	}
	if _, err := s.InsertMonitoringEvent(model.MonitoringEvent{
		ExamID:      examID,
		StudentID:   student,
		Type:        model.EventExamTerminated,
		Severity:    model.SeverityHigh,
		Description: "terminated by proctor",
	}); err != nil {
		t.Fatalf("InsertMonitoringEvent: %v", err)
	}

	events, err := s.ListMonitoringEvents(examID)
	if err != nil {
		t.Fatalf("ListMonitoringEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Type == model.EventExamStarted && ev.Severity != model.SeverityLow {
			t.Errorf("expected default severity LOW, got %q", ev.Severity)
		}
		if ev.Type == model.EventExamTerminated && ev.Severity != model.SeverityHigh {
			t.Errorf("expected severity HIGH, got %q", ev.Severity)
		}
	}
}

func TestExportExamResults(t *testing.T) {
	s := newTestStore(t)
	teacher := insertTestUser(t, s, "t@example.com", model.RoleTeacher)
	student := insertTestUser(t, s, "s@example.com", model.RoleStudent)
	q := insertTestQuestion(t, s, teacher, model.TypeMCQ, "2", 5)
	examID := insertTestExam(t, s, teacher, []string{q})

	attemptID, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: student, StartTime: time.Now(), Status: model.AttemptInProgress})
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s.UpsertAnswer(model.Answer{AttemptID: attemptID, QuestionID: q, Value: "2"}); err != nil {
		t.Fatalf("UpsertAnswer: %v", err)
	}
	if _, err := s.FinishAttempt(attemptID, model.AttemptSubmitted, time.Now(), 90, 5); err != nil {
		t.Fatalf("FinishAttempt: %v", err)
	}
	if _, err := s.CreateSubmission(model.Submission{
		AttemptID:   attemptID,
		StudentID:   student,
		Score:       5,
		TotalPoints: 5,
		Status:      model.GradingGraded,
	}); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	// An in-progress attempt from another student is excluded from export.
	other := insertTestUser(t, s, "other@example.com", model.RoleStudent)
	if _, err := s.CreateAttempt(model.Attempt{ExamID: examID, StudentID: other, StartTime: time.Now(), Status: model.AttemptInProgress}); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	export, err := s.ExportExamResults(examID)
	if err != nil {
		t.Fatalf("ExportExamResults: %v", err)
	}
	if export.ExamID != examID || export.Title != "Midterm" {
		t.Errorf("unexpected export header: %+v", export)
	}
	if len(export.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(export.Results))
	}
	res := export.Results[0]
	if res.StudentID != student || res.Email != "s@example.com" {
		t.Errorf("unexpected student: %+v", res)
	}
	if res.Score != 5 || res.TotalPoints != 5 || res.Percentage != 100 {
		t.Errorf("unexpected grade: %+v", res)
	}
	if len(res.Answers) != 1 || res.Answers[0].QuestionID != q {
		t.Errorf("unexpected answers: %+v", res.Answers)
	}
}
