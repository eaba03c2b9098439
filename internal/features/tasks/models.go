// Package tasks — models.go содержит представления заданий для клиента.
package tasks

import (
	"time"

	"serotonyl.ru/flip-bot/internal/ledger"
)

// AvailableTask — задание, которое пользователь может выполнить сейчас.
// Тексты уже переведены на язык пользователя.
type AvailableTask struct {
	ID            int64            `json:"id"`
	Kind          ledger.TaskKind  `json:"type"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	RewardTokens  int64            `json:"reward_tokens"`
	RequiredGame  *ledger.GameKind `json:"required_game_type"`
	RequiredCount int              `json:"required_count"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty"`
}

// CompleteResult — итог выполнения задания.
type CompleteResult struct {
	TaskID        int64 `json:"task_id"`
	TokensAwarded int64 `json:"tokens_awarded"`
	Balance       int64 `json:"current_balance"`
}

// CompletedTask — запись истории выполненных заданий.
type CompletedTask struct {
	ID            int64                `json:"id"`
	TaskID        int64                `json:"task_id"`
	Title         ledger.LocalizedText `json:"title"`
	Kind          ledger.TaskKind      `json:"type"`
	TokensAwarded int64                `json:"tokens_awarded"`
	CompletedAt   time.Time            `json:"completed_at"`
}
