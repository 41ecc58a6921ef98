package database

// SchemaVersion is recorded in the settings catalog as db_version
const SchemaVersion = "1.0.0"

// ColumnType is a dialect-neutral column type
type ColumnType int

const (
	TypeID ColumnType = iota // auto-increment primary key
	TypeRef                  // unsigned integer referencing an id
	TypeInt
	TypeDecimal
	TypeString
	TypeText
	TypeBool
	TypeTimestamp
	TypeEnum
	TypeJSON
)

// Column describes one column. Default is a raw SQL literal.
type Column struct {
	Name       string
	Type       ColumnType
	Size       int
	Values     []string
	Nullable   bool
	Default    string
	Unique     bool
	AutoUpdate bool
}

// Index is a secondary index
type Index struct {
	Name    string
	Columns []string
	Unique  bool
}

// Table describes one table and its columns
type Table struct {
	Name    string
	Columns []Column
	Indexes []Index
}

// Constraint is a foreign key added after all tables exist
type Constraint struct {
	Name      string
	Table     string
	Column    string
	RefTable  string
	RefColumn string
	OnDelete  string
}

func idColumn() Column { return Column{Name: "id", Type: TypeID} }

func refColumn(name string, nullable bool) Column {
	return Column{Name: name, Type: TypeRef, Nullable: nullable}
}

func createdAt() Column {
	return Column{Name: "created_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"}
}

func updatedAt() Column {
	return Column{Name: "updated_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP", AutoUpdate: true}
}

func nullableTime(name string) Column {
	return Column{Name: name, Type: TypeTimestamp, Nullable: true}
}

// Tables lists the application schema in dependency order: users first,
// every other table only references users.
var Tables = []Table{
	{
		Name: "users",
		Columns: []Column{
			idColumn(),
			{Name: "name", Type: TypeString, Size: 100},
			{Name: "email", Type: TypeString, Size: 191, Unique: true},
			{Name: "password", Type: TypeString, Size: 255},
			{Name: "affiliate_code", Type: TypeString, Size: 20, Unique: true},
			refColumn("referred_by", true),
			{Name: "api_token", Type: TypeString, Size: 64, Nullable: true, Unique: true},
			{Name: "membership_tier", Type: TypeEnum, Values: []string{"free", "basic", "premium"}, Default: "'free'"},
			{Name: "token_balance", Type: TypeInt, Default: "0"},
			{Name: "is_admin", Type: TypeBool, Default: "0"},
			{Name: "is_active", Type: TypeBool, Default: "1"},
			{Name: "email_verified", Type: TypeBool, Default: "0"},
			nullableTime("email_verified_at"),
			nullableTime("last_login_at"),
			createdAt(),
			updatedAt(),
		},
		Indexes: []Index{
			{Name: "idx_users_referred_by", Columns: []string{"referred_by"}},
			{Name: "idx_users_is_admin", Columns: []string{"is_admin"}},
		},
	},
	{
		Name: "affiliate_clicks",
		Columns: []Column{
			idColumn(),
			refColumn("affiliate_id", false),
			{Name: "ip_address", Type: TypeString, Size: 45},
			{Name: "user_agent", Type: TypeString, Size: 255, Nullable: true},
			{Name: "referrer_url", Type: TypeString, Size: 500, Nullable: true},
			{Name: "landing_page", Type: TypeString, Size: 500, Nullable: true},
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_affiliate_clicks_affiliate", Columns: []string{"affiliate_id"}},
			{Name: "idx_affiliate_clicks_created", Columns: []string{"created_at"}},
		},
	},
	{
		Name: "affiliate_signups",
		Columns: []Column{
			idColumn(),
			refColumn("affiliate_id", false),
			refColumn("referred_user_id", false),
			{Name: "commission", Type: TypeDecimal, Default: "0.00"},
			{Name: "status", Type: TypeEnum, Values: []string{"pending", "approved", "paid", "rejected"}, Default: "'pending'"},
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_affiliate_signups_affiliate", Columns: []string{"affiliate_id"}},
			{Name: "uq_affiliate_signups_referred", Columns: []string{"referred_user_id"}, Unique: true},
		},
	},
	{
		Name: "api_resellers",
		Columns: []Column{
			idColumn(),
			refColumn("user_id", false),
			{Name: "company_name", Type: TypeString, Size: 150},
			{Name: "api_key", Type: TypeString, Size: 64, Unique: true},
			{Name: "api_secret", Type: TypeString, Size: 255},
			{Name: "rate_limit", Type: TypeInt, Default: "1000"},
			{Name: "is_active", Type: TypeBool, Default: "1"},
			createdAt(),
			updatedAt(),
		},
		Indexes: []Index{
			{Name: "uq_api_resellers_user", Columns: []string{"user_id"}, Unique: true},
		},
	},
	{
		Name: "invites",
		Columns: []Column{
			idColumn(),
			refColumn("inviter_id", false),
			{Name: "email", Type: TypeString, Size: 191},
			{Name: "token", Type: TypeString, Size: 64, Unique: true},
			refColumn("accepted_by", true),
			nullableTime("accepted_at"),
			nullableTime("expires_at"),
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_invites_inviter", Columns: []string{"inviter_id"}},
			{Name: "idx_invites_accepted_by", Columns: []string{"accepted_by"}},
			{Name: "idx_invites_email", Columns: []string{"email"}},
		},
	},
	{
		Name: "password_resets",
		Columns: []Column{
			idColumn(),
			refColumn("user_id", false),
			{Name: "token", Type: TypeString, Size: 64, Unique: true},
			nullableTime("expires_at"),
			nullableTime("used_at"),
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_password_resets_user", Columns: []string{"user_id"}},
		},
	},
	{
		Name: "token_purchases",
		Columns: []Column{
			idColumn(),
			refColumn("user_id", false),
			{Name: "tokens", Type: TypeInt},
			{Name: "amount", Type: TypeDecimal},
			{Name: "currency", Type: TypeString, Size: 3, Default: "'USD'"},
			{Name: "payment_provider", Type: TypeString, Size: 50},
			{Name: "transaction_id", Type: TypeString, Size: 191, Nullable: true, Unique: true},
			{Name: "status", Type: TypeEnum, Values: []string{"pending", "completed", "failed", "refunded"}, Default: "'pending'"},
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_token_purchases_user", Columns: []string{"user_id"}},
		},
	},
	{
		Name: "user_tokens",
		Columns: []Column{
			idColumn(),
			refColumn("user_id", false),
			{Name: "token_type", Type: TypeEnum, Values: []string{"credit", "debit", "bonus", "refund"}},
			{Name: "amount", Type: TypeInt},
			{Name: "balance_after", Type: TypeInt},
			{Name: "description", Type: TypeString, Size: 255, Nullable: true},
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_user_tokens_user", Columns: []string{"user_id"}},
		},
	},
	{
		Name: "withdrawals",
		Columns: []Column{
			idColumn(),
			refColumn("user_id", false),
			{Name: "amount", Type: TypeDecimal},
			{Name: "method", Type: TypeString, Size: 50},
			{Name: "payout_details", Type: TypeText, Nullable: true},
			{Name: "status", Type: TypeEnum, Values: []string{"pending", "approved", "paid", "rejected"}, Default: "'pending'"},
			refColumn("processed_by", true),
			nullableTime("processed_at"),
			createdAt(),
		},
		Indexes: []Index{
			{Name: "idx_withdrawals_user", Columns: []string{"user_id"}},
			{Name: "idx_withdrawals_status", Columns: []string{"status"}},
		},
	},
	{
		Name: "settings",
		Columns: []Column{
			idColumn(),
			{Name: "setting_key", Type: TypeString, Size: 100, Unique: true},
			{Name: "setting_value", Type: TypeText, Nullable: true},
			{Name: "setting_type", Type: TypeEnum, Values: []string{"string", "integer", "boolean", "json", "text", "array"}, Default: "'string'"},
			{Name: "category", Type: TypeString, Size: 50, Default: "'general'"},
			{Name: "description", Type: TypeString, Size: 255, Nullable: true},
			{Name: "is_public", Type: TypeBool, Default: "0"},
			{Name: "is_required", Type: TypeBool, Default: "0"},
			createdAt(),
			updatedAt(),
		},
		Indexes: []Index{
			{Name: "idx_settings_category", Columns: []string{"category"}},
		},
	},
	{
		Name: "modules",
		Columns: []Column{
			idColumn(),
			{Name: "name", Type: TypeString, Size: 100, Unique: true},
			{Name: "title", Type: TypeString, Size: 150},
			{Name: "description", Type: TypeText, Nullable: true},
			{Name: "version", Type: TypeString, Size: 20, Default: "'1.0.0'"},
			{Name: "settings", Type: TypeJSON, Nullable: true},
			{Name: "hooks", Type: TypeJSON, Nullable: true},
			{Name: "is_enabled", Type: TypeBool, Default: "0"},
			{Name: "installed_at", Type: TypeTimestamp, Default: "CURRENT_TIMESTAMP"},
			updatedAt(),
		},
	},
}

// Constraints lists the foreign keys applied after every table exists
var Constraints = []Constraint{
	{Name: "fk_users_referred_by", Table: "users", Column: "referred_by", RefTable: "users", RefColumn: "id", OnDelete: "SET NULL"},
	{Name: "fk_affiliate_clicks_affiliate", Table: "affiliate_clicks", Column: "affiliate_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_affiliate_signups_affiliate", Table: "affiliate_signups", Column: "affiliate_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_affiliate_signups_referred", Table: "affiliate_signups", Column: "referred_user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_api_resellers_user", Table: "api_resellers", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_invites_inviter", Table: "invites", Column: "inviter_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_invites_accepted_by", Table: "invites", Column: "accepted_by", RefTable: "users", RefColumn: "id", OnDelete: "SET NULL"},
	{Name: "fk_password_resets_user", Table: "password_resets", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_token_purchases_user", Table: "token_purchases", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_user_tokens_user", Table: "user_tokens", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
	{Name: "fk_withdrawals_user", Table: "withdrawals", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: "CASCADE"},
}

// TableNames returns the table names in creation order
func TableNames() []string {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = t.Name
	}
	return names
}
