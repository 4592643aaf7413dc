package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/zerolog"

	"newspaper/internal/domain"
)

// Service управляет пользователями и профилями авторов.
type Service struct {
	users   domain.UserRepo
	authors domain.AuthorRepo
	log     zerolog.Logger
}

// NewService создаёт сервис.
func NewService(users domain.UserRepo, authors domain.AuthorRepo, logger zerolog.Logger) *Service {
	return &Service{users: users, authors: authors, log: logger}
}

// Register создаёт пользователя. Новый пользователь попадает в группу common.
func (s *Service) Register(ctx context.Context, username, email string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: пустое имя пользователя", domain.ErrInvalidInput)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return domain.User{}, fmt.Errorf("%w: некорректный email", domain.ErrInvalidInput)
		}
	}
	user, err := s.users.CreateUser(ctx, username, email, false)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("accounts: пользователь добавлен в группу common")
	return user, nil
}

// Get возвращает пользователя.
func (s *Service) Get(ctx context.Context, id int64) (domain.User, error) {
	return s.users.GetUser(ctx, id)
}

// BecomeAuthor добавляет пользователя в группу authors и создаёт профиль автора.
func (s *Service) BecomeAuthor(ctx context.Context, actor *domain.User) (domain.Author, error) {
	if actor == nil || actor.ID == 0 {
		return domain.Author{}, domain.Deny(domain.ErrUnauthenticated, "нужно войти в систему")
	}
	if !actor.InGroup(domain.GroupAuthors) {
		if err := s.users.AddUserToGroup(ctx, actor.ID, domain.GroupAuthors); err != nil {
			return domain.Author{}, fmt.Errorf("добавление в группу authors: %w", err)
		}
	}
	author, err := s.authors.EnsureAuthor(ctx, actor.ID)
	if err != nil {
		return domain.Author{}, fmt.Errorf("профиль автора: %w", err)
	}
	return author, nil
}

// UpdateRating пересчитывает и сохраняет рейтинг автора.
func (s *Service) UpdateRating(ctx context.Context, authorID int64) (domain.Author, error) {
	author, err := s.authors.GetAuthor(ctx, authorID)
	if err != nil {
		return domain.Author{}, err
	}
	parts, err := s.authors.RatingParts(ctx, authorID)
	if err != nil {
		return domain.Author{}, fmt.Errorf("слагаемые рейтинга: %w", err)
	}
	author.Rating = parts.Total()
	if err := s.authors.SetAuthorRating(ctx, authorID, author.Rating); err != nil {
		return domain.Author{}, fmt.Errorf("сохранение рейтинга: %w", err)
	}
	return author, nil
}
