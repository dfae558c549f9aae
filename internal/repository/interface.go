package repository

import (
	"vidbrief/internal/domain"
)

// TaskRepo defines the interface for durable task registry operations.
type TaskRepo interface {
	Save(task *domain.Task) error
	Get(id string) (*domain.Task, error)
	GetAll() []*domain.Task
	Delete(id string) error
}
