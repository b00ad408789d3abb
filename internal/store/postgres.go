package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PostgresStore is the gorm-backed Store used when DATABASE_URL points at a
// postgres server.
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.AutoMigrate(&User{}, &Category{}, &Question{}, &Solution{}, &Conversation{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate schema")
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&categories).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query categories")
	}
	return categories, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	return first(s.db.WithContext(ctx), &c, id, "category")
}

func (s *PostgresStore) CreateCategory(ctx context.Context, c *Category) error {
	return s.create(ctx, c, c.ID != 0, "categories")
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, c *Category) error {
	res := s.db.WithContext(ctx).Model(&Category{ID: c.ID}).
		Select("Name", "Description").Updates(c)
	return affected(res, "category")
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	return affected(s.db.WithContext(ctx).Delete(&Category{}, id), "category")
}

func (s *PostgresStore) ListQuestions(ctx context.Context) ([]Question, error) {
	var questions []Question
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query questions")
	}
	return questions, nil
}

func (s *PostgresStore) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	var q Question
	return first(s.db.WithContext(ctx), &q, id, "question")
}

func (s *PostgresStore) CreateQuestion(ctx context.Context, q *Question) error {
	return s.create(ctx, q, q.ID != 0, "questions")
}

func (s *PostgresStore) UpdateQuestion(ctx context.Context, q *Question) error {
	res := s.db.WithContext(ctx).Model(&Question{ID: q.ID}).
		Select("CategoryID", "Keywords", "Title", "Description").Updates(q)
	return affected(res, "question")
}

func (s *PostgresStore) DeleteQuestion(ctx context.Context, id int64) error {
	return affected(s.db.WithContext(ctx).Delete(&Question{}, id), "question")
}

func (s *PostgresStore) ListSolutions(ctx context.Context, questionID int64) ([]Solution, error) {
	var solutions []Solution
	tx := s.db.WithContext(ctx)
	if questionID != 0 {
		tx = tx.Where("question_id = ?", questionID)
	}
	if err := tx.Order("question_id ASC, step ASC, id ASC").Find(&solutions).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query solutions")
	}
	return solutions, nil
}

func (s *PostgresStore) GetSolution(ctx context.Context, id int64) (*Solution, error) {
	var sol Solution
	return first(s.db.WithContext(ctx), &sol, id, "solution")
}

func (s *PostgresStore) GetSolutionStep(ctx context.Context, questionID int64, step int) (*Solution, error) {
	var sol Solution
	err := s.db.WithContext(ctx).Where("question_id = ? AND step = ?", questionID, step).Order("id ASC").First(&sol).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get solution step")
	}
	return &sol, nil
}

func (s *PostgresStore) CreateSolution(ctx context.Context, sol *Solution) error {
	if sol.Type == "" {
		sol.Type = SolutionText
	}
	return s.create(ctx, sol, sol.ID != 0, "solutions")
}

func (s *PostgresStore) UpdateSolution(ctx context.Context, sol *Solution) error {
	res := s.db.WithContext(ctx).Model(&Solution{ID: sol.ID}).
		Select("QuestionID", "Step", "Text", "Type", "HelpfulLinks").Updates(sol)
	return affected(res, "solution")
}

func (s *PostgresStore) DeleteSolution(ctx context.Context, id int64) error {
	return affected(s.db.WithContext(ctx).Delete(&Solution{}, id), "solution")
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to query user")
	}
	return &u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = RoleMember
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(u).Error, "failed to insert user")
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *Conversation) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(c).Error, "failed to insert conversation")
}

func (s *PostgresStore) ListConversations(ctx context.Context, limit, offset int) ([]Conversation, error) {
	var conversations []Conversation
	err := s.db.WithContext(ctx).Order("timestamp DESC, id DESC").Limit(limit).Offset(offset).Find(&conversations).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to query conversations")
	}
	return conversations, nil
}

// create inserts row into table. Rows inserted with an explicit id (seeded
// data) move the table's id sequence past it, so later inserts don't collide.
func (s *PostgresStore) create(ctx context.Context, row interface{}, explicitID bool, table string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return errors.Wrapf(err, "failed to insert into %s", table)
		}
		if !explicitID {
			return nil
		}
		err := tx.Exec("SELECT setval(pg_get_serial_sequence(?, 'id'), (SELECT MAX(id) FROM "+table+"))", table).Error
		return errors.Wrapf(err, "failed to advance %s id sequence", table)
	})
}

func first[T any](tx *gorm.DB, dest *T, id int64, entity string) (*T, error) {
	if err := tx.First(dest, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to get %s", entity)
	}
	return dest, nil
}

func affected(res *gorm.DB, entity string) error {
	if res.Error != nil {
		return errors.Wrapf(res.Error, "failed to write %s", entity)
	}
	if res.RowsAffected == 0 {
		return errors.Wrapf(ErrNotFound, "%s not updated", entity)
	}
	return nil
}
