package postgres

import (
	"github.com/shopfront/auth-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Accounts    ports.AccountRepository
	BackupCodes ports.BackupCodeRepository
	SecurityLog ports.SecurityLogRepository
	Sessions    ports.SessionRepository
	Outbox      ports.OutboxRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Accounts:    &accountRepository{db: db},
		BackupCodes: &backupCodeRepository{db: db},
		SecurityLog: &securityLogRepository{db: db},
		Sessions:    &sessionRepository{db: db},
		Outbox:      &outboxRepository{db: db},
	}
}
