package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        password_hash TEXT NOT NULL,
        role TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS categories (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS questions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        category_id INTEGER NOT NULL DEFAULT 0, -- soft reference, no cascade
        keywords_json TEXT NOT NULL DEFAULT '[]',
        title TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS solutions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        question_id INTEGER NOT NULL,
        step INTEGER NOT NULL CHECK (step > 0),
        text TEXT NOT NULL,
        type TEXT NOT NULL DEFAULT 'text' CHECK (type IN ('text', 'image', 'link')),
        helpful_links_json TEXT NOT NULL DEFAULT '[]'
    );
    CREATE INDEX IF NOT EXISTS idx_solutions_question_step ON solutions (question_id, step);

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        messages_json TEXT NOT NULL
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Category methods
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, description FROM categories ORDER BY id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query categories")
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, errors.Wrap(err, "failed to scan category row")
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := s.db.QueryRowContext(ctx, "SELECT id, name, description FROM categories WHERE id = ?", id).Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get category")
	}
	return &c, nil
}

// CreateCategory keeps a caller-supplied id (used when seeding) and lets
// SQLite assign one otherwise.
func (s *SQLiteStore) CreateCategory(ctx context.Context, c *Category) error {
	res, err := s.db.ExecContext(ctx, "INSERT INTO categories (id, name, description) VALUES (NULLIF(?, 0), ?, ?)", c.ID, c.Name, c.Description)
	if err != nil {
		return errors.Wrap(err, "failed to insert category")
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateCategory(ctx context.Context, c *Category) error {
	res, err := s.db.ExecContext(ctx, "UPDATE categories SET name = ?, description = ? WHERE id = ?", c.Name, c.Description, c.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update category")
	}
	return requireAffected(res, "category")
}

func (s *SQLiteStore) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete category")
	}
	return requireAffected(res, "category")
}

// Question methods
const questionColumns = "id, category_id, keywords_json, title, description"

func scanQuestion(row interface{ Scan(...any) error }) (*Question, error) {
	var q Question
	var keywordsJSON string
	if err := row.Scan(&q.ID, &q.CategoryID, &keywordsJSON, &q.Title, &q.Description); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &q.Keywords); err != nil {
		log.WithError(err).Warnf("malformed keywords for question %d, treating as empty", q.ID)
		q.Keywords = nil
	}
	return &q, nil
}

func (s *SQLiteStore) ListQuestions(ctx context.Context) ([]Question, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+questionColumns+" FROM questions ORDER BY id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query questions")
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan question row")
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get question")
	}
	return q, nil
}

func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *Question) error {
	keywordsJSON, err := marshalList(q.Keywords)
	if err != nil {
		return errors.Wrap(err, "failed to marshal keywords")
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO questions (id, category_id, keywords_json, title, description) VALUES (NULLIF(?, 0), ?, ?, ?, ?)",
		q.ID, q.CategoryID, keywordsJSON, q.Title, q.Description)
	if err != nil {
		return errors.Wrap(err, "failed to insert question")
	}
	q.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *Question) error {
	keywordsJSON, err := marshalList(q.Keywords)
	if err != nil {
		return errors.Wrap(err, "failed to marshal keywords")
	}
	res, err := s.db.ExecContext(ctx, "UPDATE questions SET category_id = ?, keywords_json = ?, title = ?, description = ? WHERE id = ?",
		q.CategoryID, keywordsJSON, q.Title, q.Description, q.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update question")
	}
	return requireAffected(res, "question")
}

func (s *SQLiteStore) DeleteQuestion(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM questions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete question")
	}
	return requireAffected(res, "question")
}

// Solution methods
const solutionColumns = "id, question_id, step, text, type, helpful_links_json"

func scanSolution(row interface{ Scan(...any) error }) (*Solution, error) {
	var sol Solution
	var linksJSON string
	if err := row.Scan(&sol.ID, &sol.QuestionID, &sol.Step, &sol.Text, &sol.Type, &linksJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(linksJSON), &sol.HelpfulLinks); err != nil {
		log.WithError(err).Warnf("malformed helpful links for solution %d, treating as empty", sol.ID)
		sol.HelpfulLinks = nil
	}
	return &sol, nil
}

func (s *SQLiteStore) ListSolutions(ctx context.Context, questionID int64) ([]Solution, error) {
	query := "SELECT " + solutionColumns + " FROM solutions"
	var args []any
	if questionID != 0 {
		query += " WHERE question_id = ?"
		args = append(args, questionID)
	}
	query += " ORDER BY question_id ASC, step ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query solutions")
	}
	defer rows.Close()

	var solutions []Solution
	for rows.Next() {
		sol, err := scanSolution(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan solution row")
		}
		solutions = append(solutions, *sol)
	}
	return solutions, rows.Err()
}

func (s *SQLiteStore) GetSolution(ctx context.Context, id int64) (*Solution, error) {
	sol, err := scanSolution(s.db.QueryRowContext(ctx, "SELECT "+solutionColumns+" FROM solutions WHERE id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get solution")
	}
	return sol, nil
}

func (s *SQLiteStore) GetSolutionStep(ctx context.Context, questionID int64, step int) (*Solution, error) {
	sol, err := scanSolution(s.db.QueryRowContext(ctx,
		"SELECT "+solutionColumns+" FROM solutions WHERE question_id = ? AND step = ? ORDER BY id ASC LIMIT 1", questionID, step))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get solution step")
	}
	return sol, nil
}

func (s *SQLiteStore) CreateSolution(ctx context.Context, sol *Solution) error {
	linksJSON, err := marshalList(sol.HelpfulLinks)
	if err != nil {
		return errors.Wrap(err, "failed to marshal helpful links")
	}
	if sol.Type == "" {
		sol.Type = SolutionText
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO solutions (id, question_id, step, text, type, helpful_links_json) VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?)",
		sol.ID, sol.QuestionID, sol.Step, sol.Text, sol.Type, linksJSON)
	if err != nil {
		return errors.Wrap(err, "failed to insert solution")
	}
	sol.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) UpdateSolution(ctx context.Context, sol *Solution) error {
	linksJSON, err := marshalList(sol.HelpfulLinks)
	if err != nil {
		return errors.Wrap(err, "failed to marshal helpful links")
	}
	res, err := s.db.ExecContext(ctx, "UPDATE solutions SET question_id = ?, step = ?, text = ?, type = ?, helpful_links_json = ? WHERE id = ?",
		sol.QuestionID, sol.Step, sol.Text, sol.Type, linksJSON, sol.ID)
	if err != nil {
		return errors.Wrap(err, "failed to update solution")
	}
	return requireAffected(res, "solution")
}

func (s *SQLiteStore) DeleteSolution(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM solutions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete solution")
	}
	return requireAffected(res, "solution")
}

// User methods
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, email, name, password_hash, role, created_at FROM users WHERE email = ?", normalizeEmail(email)).
		Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleMember
	}
	u.CreatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, "INSERT INTO users (email, name, password_hash, role, created_at) VALUES (?, ?, ?, ?, ?)",
		u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to insert user")
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

// Conversation methods
func (s *SQLiteStore) CreateConversation(ctx context.Context, c *Conversation) error {
	messagesJSON, err := json.Marshal(c.Messages)
	if err != nil {
		return errors.Wrap(err, "failed to marshal conversation messages")
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx, "INSERT INTO conversations (session_id, timestamp, messages_json) VALUES (?, ?, ?)",
		c.SessionID, c.Timestamp, string(messagesJSON))
	if err != nil {
		return errors.Wrap(err, "failed to insert conversation")
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, timestamp, messages_json FROM conversations ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var c Conversation
		var messagesJSON string
		if err := rows.Scan(&c.ID, &c.SessionID, &c.Timestamp, &messagesJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		if err := json.Unmarshal([]byte(messagesJSON), &c.Messages); err != nil {
			log.WithError(err).Warnf("malformed messages for conversation %d, returning it without messages", c.ID)
			c.Messages = nil
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func requireAffected(res sql.Result, entity string) error {
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "%s not updated", entity)
	}
	return nil
}

func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	return string(b), err
}
