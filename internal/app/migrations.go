package app

import "serotonyl.ru/flip-bot/internal/db/postgres"

// migrations — схема экономики. SQL встроен в бинарник, чтобы деплой
// не зависел от файлов рядом с ним. Новые версии только добавляются в конец.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Accounts},
	{Version: 2, SQL: migration002Games},
	{Version: 3, SQL: migration003Tasks},
	{Version: 4, SQL: migration004Rewards},
	{Version: 5, SQL: migration005Payments},
	{Version: 6, SQL: migration006Referrals},
	{Version: 7, SQL: migration007ReferredOnce},
}

var migration001Accounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id BIGSERIAL PRIMARY KEY,
    telegram_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255) NOT NULL DEFAULT '',
    first_name VARCHAR(255) NOT NULL DEFAULT '',
    last_name VARCHAR(255) NOT NULL DEFAULT '',
    nickname VARCHAR(64) NOT NULL DEFAULT '',
    balance BIGINT NOT NULL DEFAULT 100 CHECK (balance >= 0),
    locale VARCHAR(8) NOT NULL DEFAULT 'en',
    sound_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    role VARCHAR(16) NOT NULL DEFAULT 'user',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_nickname ON accounts(nickname);
CREATE INDEX IF NOT EXISTS idx_accounts_role ON accounts(role);
`

var migration002Games = `
CREATE TABLE IF NOT EXISTS daily_play_counters (
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    game_kind VARCHAR(16) NOT NULL,
    play_date DATE NOT NULL,
    count INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
    UNIQUE (account_id, game_kind, play_date)
);
CREATE INDEX IF NOT EXISTS idx_daily_play_counters_date ON daily_play_counters(play_date);
CREATE TABLE IF NOT EXISTS play_records (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    game_kind VARCHAR(16) NOT NULL,
    result TEXT NOT NULL,
    tokens_earned BIGINT NOT NULL DEFAULT 0,
    played_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_play_records_account_played ON play_records(account_id, played_at DESC);
`

var migration003Tasks = `
CREATE TABLE IF NOT EXISTS tasks (
    id BIGSERIAL PRIMARY KEY,
    task_kind VARCHAR(16) NOT NULL,
    title_en TEXT NOT NULL DEFAULT '',
    title_ru TEXT NOT NULL DEFAULT '',
    description_en TEXT NOT NULL DEFAULT '',
    description_ru TEXT NOT NULL DEFAULT '',
    reward_tokens BIGINT NOT NULL CHECK (reward_tokens > 0),
    required_game_kind VARCHAR(16),
    required_count INTEGER NOT NULL DEFAULT 1 CHECK (required_count >= 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS task_completions (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    task_id BIGINT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
    period DATE NOT NULL,
    tokens_awarded BIGINT NOT NULL,
    completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (account_id, task_id, period)
);
CREATE INDEX IF NOT EXISTS idx_task_completions_account ON task_completions(account_id, completed_at DESC);
`

var migration004Rewards = `
CREATE TABLE IF NOT EXISTS rewards (
    id BIGSERIAL PRIMARY KEY,
    name_en TEXT NOT NULL DEFAULT '',
    name_ru TEXT NOT NULL DEFAULT '',
    description_en TEXT NOT NULL DEFAULT '',
    description_ru TEXT NOT NULL DEFAULT '',
    image TEXT NOT NULL DEFAULT '',
    cost BIGINT NOT NULL CHECK (cost > 0),
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    stock INTEGER CHECK (stock IS NULL OR stock >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS redemptions (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    reward_id BIGINT NOT NULL REFERENCES rewards(id) ON DELETE CASCADE,
    tokens_spent BIGINT NOT NULL,
    redeemed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_redemptions_account ON redemptions(account_id, redeemed_at DESC);
`

var migration005Payments = `
CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    package_id VARCHAR(32) NOT NULL,
    amount NUMERIC(12,2) NOT NULL,
    currency VARCHAR(8) NOT NULL,
    tokens_amount BIGINT NOT NULL CHECK (tokens_amount > 0),
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    provider_ref TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_payments_account ON payments(account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
`

var migration006Referrals = `
CREATE TABLE IF NOT EXISTS referrals (
    id BIGSERIAL PRIMARY KEY,
    referrer_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    referred_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
    reward_given BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (referrer_id, referred_id),
    CHECK (referrer_id <> referred_id)
);
`

// Аккаунт может быть приглашён только один раз
var migration007ReferredOnce = `
CREATE UNIQUE INDEX IF NOT EXISTS uq_referrals_referred ON referrals(referred_id);
`
