package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/utils"
)

// Admin conflict policies
const (
	// PolicyAdopt updates an existing admin row in place, even when its email
	// differs from the submitted one
	PolicyAdopt = "adopt"
	// PolicyReject refuses to touch an admin registered under another email
	PolicyReject = "reject"
)

const affiliateCodeLength = 8

// AdminInfo is what the wizard keeps about the provisioned administrator
type AdminInfo struct {
	ID       int64
	Name     string
	Email    string
	APIToken string
	Created  bool
}

// AdminProvisioner creates the administrator or updates the existing one
type AdminProvisioner struct {
	dialect  database.Dialect
	logger   *utils.Logger
	policy   string
	hashAlgo string
	now      func() time.Time
}

// NewAdminProvisioner creates a provisioner. Unknown policies fall back to adopt.
func NewAdminProvisioner(dialect database.Dialect, policy, hashAlgo string, logger *utils.Logger) *AdminProvisioner {
	if policy != PolicyReject {
		policy = PolicyAdopt
	}
	return &AdminProvisioner{
		dialect:  dialect,
		logger:   logger,
		policy:   policy,
		hashAlgo: hashAlgo,
		now:      time.Now,
	}
}

// Provision looks up a user matching email or carrying the admin flag,
// preferring the admin row, and updates it in place; otherwise it inserts a
// new premium, verified administrator. Lookup and write share a transaction.
func (p *AdminProvisioner) Provision(ctx context.Context, db *sql.DB, name, email, password string) (*AdminInfo, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	hash, err := utils.HashPasswordWith(p.hashAlgo, password)
	if err != nil {
		return nil, &ProvisioningError{Reason: "could not hash password", Err: err}
	}

	var info *AdminInfo
	err = database.WithTransaction(ctx, db, func(tx *sql.Tx) error {
		existing, err := p.lookup(ctx, tx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			info, err = p.update(ctx, tx, existing, name, email, hash)
		} else {
			info, err = p.insert(ctx, tx, name, email, hash)
		}
		return err
	})
	if err != nil {
		var pe *ProvisioningError
		if errors.As(err, &pe) {
			return nil, err
		}
		if database.Classify(err) == database.KindDuplicateEntry {
			return nil, &ProvisioningError{Reason: "email already belongs to another account", Err: err}
		}
		return nil, &ProvisioningError{Reason: "database error", Err: err}
	}

	if info.Created {
		p.logger.Info("Created administrator #%d <%s>", info.ID, info.Email)
	} else {
		p.logger.Info("Updated existing administrator #%d <%s>", info.ID, info.Email)
	}
	return info, nil
}

type adminRow struct {
	id       int64
	email    string
	isAdmin  bool
	apiToken sql.NullString
}

func (p *AdminProvisioner) lookup(ctx context.Context, tx *sql.Tx, email string) (*adminRow, error) {
	query := fmt.Sprintf("SELECT id, email, is_admin, api_token FROM %s WHERE email = ? OR is_admin = 1 ORDER BY is_admin DESC, id ASC LIMIT 1%s",
		p.dialect.Quote("users"), p.dialect.ForUpdate())

	qctx, cancel := context.WithTimeout(ctx, database.TimeoutSimpleSelect)
	defer cancel()

	var row adminRow
	err := tx.QueryRowContext(qctx, query, email).Scan(&row.id, &row.email, &row.isAdmin, &row.apiToken)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up administrator: %w", err)
	}
	return &row, nil
}

func (p *AdminProvisioner) update(ctx context.Context, tx *sql.Tx, row *adminRow, name, email, hash string) (*AdminInfo, error) {
	if row.isAdmin && !strings.EqualFold(row.email, email) {
		if p.policy == PolicyReject {
			return nil, &ProvisioningError{Reason: fmt.Sprintf("an administrator is already registered as %s", row.email)}
		}
		p.logger.Warn("Adopting existing administrator #%d: email %s -> %s", row.id, row.email, email)
	}

	token := row.apiToken.String
	if !row.apiToken.Valid || token == "" {
		var err error
		if token, err = utils.GenerateAPIToken(); err != nil {
			return nil, &ProvisioningError{Reason: "could not generate API token", Err: err}
		}
	}

	now := p.timestamp()
	stmt := fmt.Sprintf(`UPDATE %s SET name = ?, email = ?, password = ?, membership_tier = 'premium',
		email_verified = 1, email_verified_at = ?, is_admin = 1, is_active = 1, api_token = ?, updated_at = ?
		WHERE id = ?`, p.dialect.Quote("users"))
	if _, err := database.ExecContext(ctx, tx, database.TimeoutWrite, stmt, name, email, hash, now, token, now, row.id); err != nil {
		return nil, fmt.Errorf("failed to update administrator: %w", err)
	}

	return &AdminInfo{ID: row.id, Name: name, Email: email, APIToken: token}, nil
}

func (p *AdminProvisioner) insert(ctx context.Context, tx *sql.Tx, name, email, hash string) (*AdminInfo, error) {
	code, err := p.uniqueAffiliateCode(ctx, tx)
	if err != nil {
		return nil, err
	}
	token, err := utils.GenerateAPIToken()
	if err != nil {
		return nil, &ProvisioningError{Reason: "could not generate API token", Err: err}
	}

	now := p.timestamp()
	stmt := fmt.Sprintf(`INSERT INTO %s (name, email, password, affiliate_code, api_token, membership_tier,
		token_balance, is_admin, is_active, email_verified, email_verified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'premium', 0, 1, 1, 1, ?, ?, ?)`, p.dialect.Quote("users"))
	res, err := database.ExecContext(ctx, tx, database.TimeoutWrite, stmt, name, email, hash, code, token, now, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert administrator: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read administrator id: %w", err)
	}

	return &AdminInfo{ID: id, Name: name, Email: email, APIToken: token, Created: true}, nil
}

func (p *AdminProvisioner) uniqueAffiliateCode(ctx context.Context, tx *sql.Tx) (string, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE affiliate_code = ?", p.dialect.Quote("users"))
	for attempt := 0; attempt < 10; attempt++ {
		code, err := utils.GenerateCode(affiliateCodeLength)
		if err != nil {
			return "", &ProvisioningError{Reason: "could not generate affiliate code", Err: err}
		}
		var n int
		if err := tx.QueryRowContext(ctx, query, code).Scan(&n); err != nil {
			return "", fmt.Errorf("failed to check affiliate code: %w", err)
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", &ProvisioningError{Reason: "could not find a free affiliate code"}
}

func (p *AdminProvisioner) timestamp() string {
	return p.now().UTC().Format("2006-01-02 15:04:05")
}
