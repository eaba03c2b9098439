// Package admin — управление каталогом, пользователями и платежами.
// models.go описывает входные данные админки и их проверку.
package admin

import (
	"strings"
	"time"

	"serotonyl.ru/flip-bot/internal/common"
	"serotonyl.ru/flip-bot/internal/ledger"
)

// TaskInput — задание из админки. PUT заменяет задание целиком.
type TaskInput struct {
	Kind          string     `json:"task_type"`
	TitleEN       string     `json:"title_en"`
	TitleRU       string     `json:"title_ru"`
	DescriptionEN string     `json:"description_en"`
	DescriptionRU string     `json:"description_ru"`
	RewardTokens  int64      `json:"reward_tokens"`
	RequiredGame  *string    `json:"required_game_type"`
	RequiredCount int        `json:"required_count"`
	Active        *bool      `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at"`
}

// Task проверяет ввод и строит задание.
func (in TaskInput) Task() (*ledger.Task, error) {
	kind, err := ledger.ParseTaskKind(in.Kind)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TitleEN) == "" {
		return nil, common.InvalidInput("title_en обязателен")
	}
	if in.RewardTokens <= 0 {
		return nil, common.InvalidInput("reward_tokens должен быть > 0")
	}
	if in.RequiredCount < 0 {
		return nil, common.InvalidInput("required_count не может быть отрицательным")
	}

	t := &ledger.Task{
		Kind:          kind,
		Title:         ledger.LocalizedText{EN: in.TitleEN, RU: in.TitleRU},
		Description:   ledger.LocalizedText{EN: in.DescriptionEN, RU: in.DescriptionRU},
		RewardTokens:  in.RewardTokens,
		RequiredCount: max(in.RequiredCount, 1),
		Active:        in.Active == nil || *in.Active,
	}
	if in.RequiredGame != nil && *in.RequiredGame != "" {
		g, err := ledger.ParseGameKind(*in.RequiredGame)
		if err != nil {
			return nil, err
		}
		t.RequiredGame = &g
	}
	if in.ExpiresAt != nil {
		exp := in.ExpiresAt.UTC()
		t.ExpiresAt = &exp
	}
	return t, nil
}

// RewardInput — награда из админки. PUT заменяет награду целиком.
type RewardInput struct {
	NameEN        string `json:"name_en"`
	NameRU        string `json:"name_ru"`
	DescriptionEN string `json:"description_en"`
	DescriptionRU string `json:"description_ru"`
	Image         string `json:"image"`
	Cost          int64  `json:"cost"`
	Active        *bool  `json:"is_active"`
	Stock         *int   `json:"stock"`
}

// Reward проверяет ввод и строит награду.
func (in RewardInput) Reward() (*ledger.Reward, error) {
	if strings.TrimSpace(in.NameEN) == "" {
		return nil, common.InvalidInput("name_en обязателен")
	}
	if in.Cost <= 0 {
		return nil, common.InvalidInput("cost должен быть > 0")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return nil, common.InvalidInput("stock не может быть отрицательным")
	}
	r := &ledger.Reward{
		Name:        ledger.LocalizedText{EN: in.NameEN, RU: in.NameRU},
		Description: ledger.LocalizedText{EN: in.DescriptionEN, RU: in.DescriptionRU},
		Image:       in.Image,
		Cost:        in.Cost,
		Active:      in.Active == nil || *in.Active,
	}
	if in.Stock != nil {
		stock := *in.Stock
		r.Stock = &stock
	}
	return r, nil
}

// UserUpdate — правка пользователя админом. nil — поле не меняется.
type UserUpdate struct {
	Nickname     *string `json:"nickname"`
	Balance      *int64  `json:"flip_tokens"`
	Language     *string `json:"language"`
	SoundEnabled *bool   `json:"sound_enabled"`
	Role         *string `json:"role"`
}

// PaymentView — платёж с никнеймом пользователя.
type PaymentView struct {
	ledger.Payment
	UserNickname string `json:"user_nickname"`
}

// SeedResult — сколько записей создано начальным наполнением.
type SeedResult struct {
	TasksCreated   int `json:"tasks_created"`
	RewardsCreated int `json:"rewards_created"`
}
