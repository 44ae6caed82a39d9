package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"instaflow/internal/domain"
	"instaflow/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.AccountRepo    = (*Postgres)(nil)
	_ domain.AutomationRepo = (*Postgres)(nil)
	_ domain.ActivityRepo   = (*Postgres)(nil)
	_ domain.ContentRepo    = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

const accountColumns = `id, user_id, instagram_user_id, COALESCE(ig_business_account_id, ''), username, access_token, token_expires_at, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.IGAccount, error) {
	var (
		acc     domain.IGAccount
		expires sql.NullTime
	)
	err := row.Scan(&acc.ID, &acc.UserID, &acc.IGUserID, &acc.BusinessID, &acc.Username, &acc.AccessToken, &expires, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IGAccount{}, domain.ErrNotFound
		}
		return domain.IGAccount{}, err
	}
	if expires.Valid {
		t := expires.Time
		acc.TokenExpires = &t
	}
	return acc, nil
}

// GetAccountByBusinessID ищет аккаунт по бизнес-идентификатору платформы.
func (p *Postgres) GetAccountByBusinessID(ctx context.Context, businessID string) (domain.IGAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM instagram_accounts WHERE ig_business_account_id = $1`, businessID)
	acc, err := scanAccount(row)
	metrics.ObserveNetworkRequest("postgres", "account_by_business_id", "instagram_accounts", start, ignoreNotFound(err))
	return acc, err
}

// GetAccountByIGUserID ищет аккаунт по базовому идентификатору платформы.
func (p *Postgres) GetAccountByIGUserID(ctx context.Context, igUserID string) (domain.IGAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM instagram_accounts WHERE instagram_user_id = $1`, igUserID)
	acc, err := scanAccount(row)
	metrics.ObserveNetworkRequest("postgres", "account_by_ig_user_id", "instagram_accounts", start, ignoreNotFound(err))
	return acc, err
}

// GetAccountByID возвращает аккаунт по локальному идентификатору.
func (p *Postgres) GetAccountByID(ctx context.Context, id string) (domain.IGAccount, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM instagram_accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	metrics.ObserveNetworkRequest("postgres", "account_by_id", "instagram_accounts", start, ignoreNotFound(err))
	return acc, err
}

// UpdateAccountBusinessID дозаписывает бизнес-идентификатор аккаунта.
func (p *Postgres) UpdateAccountBusinessID(ctx context.Context, id, businessID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE instagram_accounts SET ig_business_account_id = $2, updated_at = now() WHERE id = $1`, id, businessID)
	metrics.ObserveNetworkRequest("postgres", "account_update_business_id", "instagram_accounts", start, err)
	return err
}

// DeleteAccountCascade удаляет аккаунт вместе с его автоматизациями.
func (p *Postgres) DeleteAccountCascade(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "instagram_accounts", start, err)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM automations WHERE instagram_account_id = $1`, id); err != nil {
		return fmt.Errorf("удаление автоматизаций аккаунта: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM instagram_accounts WHERE id = $1`, id); err != nil {
		return fmt.Errorf("удаление аккаунта: %w", err)
	}
	return tx.Commit(ctx)
}

const automationColumns = `id, user_id, instagram_account_id, type, title, COALESCE(description, ''), is_active, config, stats, created_at, updated_at`

func scanAutomation(row pgx.Row) (domain.Automation, error) {
	var (
		a           domain.Automation
		configJSON  []byte
		statsJSON   []byte
	)
	err := row.Scan(&a.ID, &a.UserID, &a.IGAccountID, &a.Kind, &a.Title, &a.Description, &a.IsActive, &configJSON, &statsJSON, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Automation{}, domain.ErrNotFound
		}
		return domain.Automation{}, err
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &a.Config); err != nil {
			return domain.Automation{}, fmt.Errorf("распаковка config: %w", err)
		}
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &a.Stats); err != nil {
			return domain.Automation{}, fmt.Errorf("распаковка stats: %w", err)
		}
	}
	return a, nil
}

func collectAutomations(rows pgx.Rows) ([]domain.Automation, error) {
	defer rows.Close()
	var out []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAccountAutomations возвращает все правила аккаунта.
func (p *Postgres) ListAccountAutomations(ctx context.Context, igAccountID string) ([]domain.Automation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+automationColumns+` FROM automations WHERE instagram_account_id = $1 ORDER BY created_at`, igAccountID)
	metrics.ObserveNetworkRequest("postgres", "automations_by_account", "automations", start, err)
	if err != nil {
		return nil, err
	}
	return collectAutomations(rows)
}

// ListActiveAutomationsByKind возвращает активные правила указанного вида по всем аккаунтам.
func (p *Postgres) ListActiveAutomationsByKind(ctx context.Context, kind string) ([]domain.Automation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+automationColumns+` FROM automations WHERE is_active AND type = $1 ORDER BY created_at`, kind)
	metrics.ObserveNetworkRequest("postgres", "automations_active_by_kind", "automations", start, err)
	if err != nil {
		return nil, err
	}
	return collectAutomations(rows)
}

// ListUserAutomations возвращает все правила пользователя.
func (p *Postgres) ListUserAutomations(ctx context.Context, userID string) ([]domain.Automation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+automationColumns+` FROM automations WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	metrics.ObserveNetworkRequest("postgres", "automations_by_user", "automations", start, err)
	if err != nil {
		return nil, err
	}
	return collectAutomations(rows)
}

// GetAutomation возвращает правило по идентификатору.
func (p *Postgres) GetAutomation(ctx context.Context, id string) (domain.Automation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+automationColumns+` FROM automations WHERE id = $1`, id)
	a, err := scanAutomation(row)
	metrics.ObserveNetworkRequest("postgres", "automation_by_id", "automations", start, ignoreNotFound(err))
	return a, err
}

// CreateAutomation сохраняет новое правило.
func (p *Postgres) CreateAutomation(ctx context.Context, a domain.Automation) (domain.Automation, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	configJSON, err := json.Marshal(a.Config)
	if err != nil {
		return domain.Automation{}, fmt.Errorf("упаковка config: %w", err)
	}
	statsJSON, err := json.Marshal(a.Stats)
	if err != nil {
		return domain.Automation{}, fmt.Errorf("упаковка stats: %w", err)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO automations (id, user_id, instagram_account_id, type, title, description, is_active, config, stats)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
RETURNING created_at, updated_at
`, a.ID, a.UserID, a.IGAccountID, a.Kind, a.Title, a.Description, a.IsActive, configJSON, statsJSON)
	err = row.Scan(&a.CreatedAt, &a.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "automation_insert", "automations", start, err)
	if err != nil {
		return domain.Automation{}, err
	}
	return a, nil
}

// UpdateAutomation обновляет настраиваемые поля правила.
func (p *Postgres) UpdateAutomation(ctx context.Context, a domain.Automation) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	configJSON, err := json.Marshal(a.Config)
	if err != nil {
		return fmt.Errorf("упаковка config: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE automations SET title = $2, description = NULLIF($3, ''), is_active = $4, config = $5, updated_at = now()
WHERE id = $1
`, a.ID, a.Title, a.Description, a.IsActive, configJSON)
	metrics.ObserveNetworkRequest("postgres", "automation_update", "automations", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateAutomationStats перезаписывает статистику срабатываний правила.
func (p *Postgres) UpdateAutomationStats(ctx context.Context, id string, stats domain.AutomationStats) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("упаковка stats: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `UPDATE automations SET stats = $2, updated_at = now() WHERE id = $1`, id, statsJSON)
	metrics.ObserveNetworkRequest("postgres", "automation_update_stats", "automations", start, err)
	return err
}

// DeleteAutomation удаляет правило.
func (p *Postgres) DeleteAutomation(ctx context.Context, id string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM automations WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "automation_delete", "automations", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendActivity добавляет запись в журнал активности.
func (p *Postgres) AppendActivity(ctx context.Context, entry domain.ActivityEntry) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO activity_log (id, user_id, automation_id, action, target_username, details)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), NULLIF($6, ''))
`, entry.ID, entry.UserID, entry.AutomationID, entry.Action, entry.TargetUsername, entry.Details)
	metrics.ObserveNetworkRequest("postgres", "activity_insert", "activity_log", start, err)
	return err
}

// ListActivity возвращает последние записи журнала пользователя.
func (p *Postgres) ListActivity(ctx context.Context, userID string, limit int) ([]domain.ActivityEntry, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, COALESCE(automation_id, ''), action, COALESCE(target_username, ''), COALESCE(details, ''), created_at
FROM activity_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "activity_list", "activity_log", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.AutomationID, &e.Action, &e.TargetUsername, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveGeneratedContent сохраняет сгенерированный текст.
func (p *Postgres) SaveGeneratedContent(ctx context.Context, c domain.GeneratedContent) (domain.GeneratedContent, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO generated_content (id, user_id, topic, tone, additional_instructions, generated_text)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
RETURNING created_at
`, c.ID, c.UserID, c.Topic, c.Tone, c.Instructions, c.GeneratedText)
	err := row.Scan(&c.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "content_insert", "generated_content", start, err)
	if err != nil {
		return domain.GeneratedContent{}, err
	}
	return c, nil
}

// ListGeneratedContent возвращает историю генераций пользователя.
func (p *Postgres) ListGeneratedContent(ctx context.Context, userID string, limit int) ([]domain.GeneratedContent, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, topic, COALESCE(tone, ''), COALESCE(additional_instructions, ''), generated_text, created_at
FROM generated_content WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "content_list", "generated_content", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GeneratedContent
	for rows.Next() {
		var c domain.GeneratedContent
		if err := rows.Scan(&c.ID, &c.UserID, &c.Topic, &c.Tone, &c.Instructions, &c.GeneratedText, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ignoreNotFound не считает отсутствие записи сетевой ошибкой для метрик.
func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}
