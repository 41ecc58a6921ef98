// Package handler drives the installation wizard over HTTP.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/database"
	"github.com/apimgr/memberkit/src/server/metrics"
	"github.com/apimgr/memberkit/src/server/service"
	"github.com/apimgr/memberkit/src/server/session"
	"github.com/apimgr/memberkit/src/utils"
)

// Step is one stage of the wizard
type Step int

const (
	StepRequirements Step = iota + 1
	StepDatabase
	StepAdminAccount
	StepModules
	StepConfiguration
	StepComplete
)

var stepNames = map[Step]string{
	StepRequirements:  "requirements",
	StepDatabase:      "database",
	StepAdminAccount:  "admin",
	StepModules:       "modules",
	StepConfiguration: "configuration",
	StepComplete:      "complete",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "step" + strconv.Itoa(int(s))
}

// Valid reports whether s is one of the six steps
func (s Step) Valid() bool {
	return s >= StepRequirements && s <= StepComplete
}

// Next returns the following step; Complete is terminal
func (s Step) Next() Step {
	if s >= StepComplete {
		return StepComplete
	}
	return s + 1
}

// ParseStep parses the client supplied step field
func ParseStep(v string) (Step, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	s := Step(n)
	return s, s.Valid()
}

// ValidationError is a malformed or missing form value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field, format string, v ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, v...)}
}

// Result is what one step submission produced
type Result struct {
	Errors   []string
	Warnings []string
	Success  []string
	// Fields that failed validation
	Invalid  []string
	NextStep Step
	Redirect string
	Report   *service.Report
}

// OK reports whether the step succeeded
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

func (r *Result) fail(err error) {
	var ve *ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		r.Invalid = append(r.Invalid, ve.Field)
	}
	r.Errors = append(r.Errors, err.Error())
}

// Controller maps steps to their handlers and advances the context
type Controller struct {
	cfg       *config.Config
	logger    *utils.Logger
	probe     *service.RequirementsProbe
	connector *database.Connector
	registry  *service.Registry
	opts      database.Options

	Version   string
	InstallID string
	now       func() time.Time

	installSchema func(ctx context.Context, db *sql.DB, d database.Dialect) (service.Strategy, error)
}

// NewController wires the provisioning services from cfg
func NewController(cfg *config.Config, probe *service.RequirementsProbe, registry *service.Registry, logger *utils.Logger) *Controller {
	opts := database.Options{
		ConnectTimeout: cfg.Database.ConnectTimeout,
		Charset:        cfg.Database.Charset,
		Collation:      cfg.Database.Collation,
	}
	ctl := &Controller{
		cfg:       cfg,
		logger:    logger,
		probe:     probe,
		connector: database.NewConnector(opts),
		registry:  registry,
		opts:      opts,
		now:       time.Now,
	}
	ctl.installSchema = func(ctx context.Context, db *sql.DB, d database.Dialect) (service.Strategy, error) {
		return ctl.schemaInstaller(d).Install(ctx, db)
	}
	return ctl
}

// Registry returns the module registry offered on the modules step
func (ctl *Controller) Registry() *service.Registry {
	return ctl.registry
}

// Probe runs the requirements probe without advancing
func (ctl *Controller) Probe(ctx context.Context) service.Report {
	return ctl.probe.Check(ctx)
}

// Handle runs step against form. The caller holds ic's lock.
func (ctl *Controller) Handle(ctx context.Context, ic *session.InstallationContext, step Step, form url.Values) Result {
	start := time.Now()
	res := Result{NextStep: step}

	if !step.Valid() {
		res.fail(invalid("step", "Unknown installation step"))
		return res
	}

	if err := ctl.prerequisites(ic, step); err != nil {
		res.fail(err)
	} else {
		switch step {
		case StepRequirements:
			ctl.handleRequirements(ctx, &res)
		case StepDatabase:
			ctl.handleDatabase(ctx, ic, form, &res)
		case StepAdminAccount:
			ctl.handleAdmin(ctx, ic, form, &res)
		case StepModules:
			ctl.handleModules(ic, form, &res)
		case StepConfiguration:
			ctl.handleConfiguration(ctx, ic, &res)
		case StepComplete:
			ctl.handleComplete(ic, form, &res)
		}
	}

	outcome := "ok"
	if res.OK() {
		res.NextStep = step.Next()
		ic.Step = int(res.NextStep)
		if ic.Step > ic.MaxStep {
			ic.MaxStep = ic.Step
		}
	} else {
		outcome = "error"
		if int(step) <= ic.MaxStep {
			ic.Step = int(step)
		}
		ctl.logger.Warn("Install step %s failed: %s", step, strings.Join(res.Errors, "; "))
	}
	metrics.RecordStep(step.String(), outcome, time.Since(start))
	return res
}

// prerequisites rejects steps whose inputs from earlier steps are missing,
// whatever step number the client claimed
func (ctl *Controller) prerequisites(ic *session.InstallationContext, step Step) error {
	if step >= StepDatabase && ic.MaxStep < int(StepDatabase) {
		return invalid("", "Requirements have not been met. Complete the requirements step first.")
	}
	if step >= StepAdminAccount && ic.DB == nil {
		return invalid("", "Database configuration is missing. Complete the database step first.")
	}
	if step >= StepModules && ic.Admin == nil {
		return invalid("", "Administrator account is missing. Complete the administrator step first.")
	}
	if step == StepComplete && ic.MaxStep < int(StepComplete) {
		return invalid("", "Configuration has not been written yet.")
	}
	return nil
}

func (ctl *Controller) handleRequirements(ctx context.Context, res *Result) {
	report := ctl.probe.Check(ctx)
	res.Report = &report
	for _, c := range report.Failed() {
		if c.Detail != "" {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", c.Label, c.Detail))
		} else {
			res.Errors = append(res.Errors, c.Label+" is required")
		}
	}
	for _, rec := range report.Recommendations {
		if !rec.OK {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s is %s, %s recommended", rec.Name, rec.Current, rec.Recommended))
		}
	}
	if res.OK() {
		res.Success = append(res.Success, "All requirements are met")
	}
}

// DatabaseForm returns credentials parsed from the database step fields
func (ctl *Controller) DatabaseForm(form url.Values) (database.Credentials, []error) {
	var errs []error
	creds := database.Credentials{
		Driver:   strings.TrimSpace(form.Get("db_driver")),
		Host:     strings.TrimSpace(form.Get("db_host")),
		Name:     strings.TrimSpace(form.Get("db_name")),
		User:     strings.TrimSpace(form.Get("db_user")),
		Password: form.Get("db_pass"),
	}
	if creds.Driver == "" {
		creds.Driver = ctl.cfg.Database.Driver
	}
	creds.Driver = creds.DriverName()

	if creds.Driver == database.DriverSQLite {
		if creds.Name == "" {
			errs = append(errs, invalid("db_name", "Database file is required"))
		} else if !filepath.IsAbs(creds.Name) {
			creds.Name = ctl.cfg.AppPath(creds.Name)
		}
		return creds, errs
	}

	if creds.Host == "" {
		errs = append(errs, invalid("db_host", "Database host is required"))
	}
	if creds.Name == "" {
		errs = append(errs, invalid("db_name", "Database name is required"))
	} else if !database.ValidIdentifier(creds.Name) {
		errs = append(errs, invalid("db_name", "Database name may only contain letters, numbers and underscores"))
	}
	if creds.User == "" {
		errs = append(errs, invalid("db_user", "Database user is required"))
	}

	creds.Port = ctl.cfg.Database.DefaultPort
	if p := strings.TrimSpace(form.Get("db_port")); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, invalid("db_port", "Database port must be a number between 1 and 65535"))
		} else {
			creds.Port = port
		}
	}
	return creds, errs
}

// handleDatabase stores the credentials only once the schema is in place
func (ctl *Controller) handleDatabase(ctx context.Context, ic *session.InstallationContext, form url.Values, res *Result) {
	ic.DB = nil
	creds, errs := ctl.DatabaseForm(form)
	if len(errs) > 0 {
		for _, err := range errs {
			res.fail(err)
		}
		return
	}

	verified, err := ctl.connector.Test(ctx, creds)
	if err != nil {
		var ce *database.ConnectivityError
		if errors.As(err, &ce) {
			ctl.logger.Error("Database test failed at %s: %v", ce.Stage, ce.Err)
			res.Errors = append(res.Errors, ce.Message())
		} else {
			ctl.logger.Error("Database test failed: %v", err)
			res.Errors = append(res.Errors, "Could not verify the database connection")
		}
		return
	}
	res.Success = append(res.Success, "Database connection verified")

	db, dialect, err := database.Open(ctx, *verified, ctl.opts)
	if err != nil {
		ctl.logger.Error("Failed to reopen database: %v", err)
		res.Errors = append(res.Errors, "Could not reconnect to the database")
		return
	}
	defer db.Close()

	strategy, err := ctl.installSchema(ctx, db, dialect)
	if err != nil {
		ctl.logger.Error("Schema installation failed: %v", err)
		res.Errors = append(res.Errors, "The database schema could not be installed. Check error.log for details.")
		return
	}
	if strategy == service.StrategyFallback {
		res.Warnings = append(res.Warnings, "Tables were created without a transaction")
	}
	ic.DB = verified
	res.Success = append(res.Success, "Database tables created")
}

func (ctl *Controller) schemaInstaller(d database.Dialect) *service.SchemaInstaller {
	return service.NewSchemaInstaller(d,
		service.NewSettingsSeeder(d, ctl.logger),
		service.NewConstraintApplier(d, ctl.logger),
		ctl.logger)
}

// AdminForm validates the administrator step fields
func (ctl *Controller) AdminForm(form url.Values) (name, email, password, siteName string, errs []error) {
	name = strings.TrimSpace(form.Get("admin_name"))
	email = utils.NormalizeEmail(form.Get("admin_email"))
	password = form.Get("admin_password")
	confirm := form.Get("admin_confirm")
	siteName = strings.TrimSpace(form.Get("site_name"))

	switch {
	case name == "":
		errs = append(errs, invalid("admin_name", "Administrator name is required"))
	case len(name) > 100:
		errs = append(errs, invalid("admin_name", "Administrator name must be at most 100 characters"))
	}

	if email == "" {
		errs = append(errs, invalid("admin_email", "Administrator email is required"))
	} else if err := utils.ValidateEmail(email); err != nil {
		errs = append(errs, invalid("admin_email", "Administrator email is not valid: %v", err))
	}

	minLen := ctl.cfg.Install.MinPasswordLen
	switch {
	case len(password) < minLen:
		errs = append(errs, invalid("admin_password", "Password must be at least %d characters", minLen))
	case password != strings.TrimSpace(password):
		errs = append(errs, invalid("admin_password", "Password cannot start or end with whitespace"))
	case password != confirm:
		errs = append(errs, invalid("admin_confirm", "Passwords do not match"))
	}

	switch {
	case siteName == "":
		errs = append(errs, invalid("site_name", "Site name is required"))
	case len(siteName) > 100:
		errs = append(errs, invalid("site_name", "Site name must be at most 100 characters"))
	}
	return name, email, password, siteName, errs
}

func (ctl *Controller) handleAdmin(ctx context.Context, ic *session.InstallationContext, form url.Values, res *Result) {
	name, email, password, siteName, errs := ctl.AdminForm(form)
	if len(errs) > 0 {
		for _, err := range errs {
			res.fail(err)
		}
		return
	}

	db, dialect, err := database.Open(ctx, *ic.DB, ctl.opts)
	if err != nil {
		ctl.logger.Error("Failed to open database: %v", err)
		res.Errors = append(res.Errors, "Could not connect to the database")
		return
	}
	defer db.Close()

	provisioner := service.NewAdminProvisioner(dialect, ctl.cfg.Install.AdminConflict, ctl.cfg.Install.PasswordHash, ctl.logger)
	admin, err := provisioner.Provision(ctx, db, name, email, password)
	if err != nil {
		ctl.logger.Error("%v", err)
		var pe *service.ProvisioningError
		if errors.As(err, &pe) {
			res.Errors = append(res.Errors, "Could not create the administrator: "+pe.Reason)
		} else {
			res.Errors = append(res.Errors, "Could not create the administrator")
		}
		return
	}

	if err := ctl.upsertDerived(ctx, db, dialect, ic, admin, siteName); err != nil {
		ctl.logger.Error("Failed to update installation settings: %v", err)
		res.Errors = append(res.Errors, "Could not save the site settings")
		return
	}

	ic.Admin = admin
	ic.SiteName = siteName
	if admin.Created {
		res.Success = append(res.Success, "Administrator account created")
	} else {
		res.Success = append(res.Success, "Existing administrator account updated")
	}
}

func (ctl *Controller) upsertDerived(ctx context.Context, db *sql.DB, d database.Dialect, ic *session.InstallationContext, admin *service.AdminInfo, siteName string) error {
	seeder := service.NewSettingsSeeder(d, ctl.logger)
	return seeder.UpsertInstallationDerived(ctx, db, service.Derived{
		AdminEmail:  admin.Email,
		SiteName:    siteName,
		SiteURL:     ic.SiteURL,
		AdminUserID: admin.ID,
	})
}

// ModuleSelection trims, lower-cases and de-duplicates the submitted modules
func ModuleSelection(form url.Values) []string {
	seen := make(map[string]bool)
	var out []string
	for _, v := range append(form["modules[]"], form["modules"]...) {
		name := strings.ToLower(strings.TrimSpace(v))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func (ctl *Controller) handleModules(ic *session.InstallationContext, form url.Values, res *Result) {
	ic.SelectedModules = ModuleSelection(form)
	if len(ic.SelectedModules) == 0 {
		res.Success = append(res.Success, "No optional modules selected")
		return
	}
	res.Success = append(res.Success, "Selected modules: "+strings.Join(ic.SelectedModules, ", "))
}

func (ctl *Controller) handleConfiguration(ctx context.Context, ic *session.InstallationContext, res *Result) {
	db, dialect, err := database.Open(ctx, *ic.DB, ctl.opts)
	if err != nil {
		ctl.logger.Error("Failed to open database: %v", err)
		res.Errors = append(res.Errors, "Could not connect to the database")
		return
	}
	defer db.Close()

	var installed []string
	if len(ic.SelectedModules) > 0 {
		provisioner, err := service.NewModuleProvisioner(ctl.registry, dialect, ctl.cfg.AppPath(ctl.cfg.Modules.Dir), ctl.logger)
		if err != nil {
			ctl.logger.Error("%v", err)
			res.Errors = append(res.Errors, "Module templates are unavailable")
			return
		}
		batch := provisioner.InstallAll(ctx, db, ic.SelectedModules)
		for _, item := range batch.Items {
			if item.Outcome == service.OutcomeFailed {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Module %s was not installed: %v", item.Name, errors.Unwrap(item.Err)))
				continue
			}
			installed = append(installed, item.Name)
		}
		ctl.logger.Info("Modules: %s", batch.Summary())
	}

	generator, err := service.NewConfigGenerator(ctl.cfg.Paths.AppRoot, ctl.logger)
	if err != nil {
		ctl.logger.Error("%v", err)
		res.Errors = append(res.Errors, "Configuration templates are unavailable")
		return
	}
	written, err := generator.Generate(ctl.configData(ic, installed))
	if err != nil {
		ctl.logger.Error("%v", err)
		var we *service.ConfigWriteError
		if errors.As(err, &we) {
			res.Errors = append(res.Errors, fmt.Sprintf("Could not write %s. Check that the directory is writable.", we.Path))
		} else {
			res.Errors = append(res.Errors, "Could not write the configuration files")
		}
		return
	}

	ic.Generated = written
	res.Success = append(res.Success, fmt.Sprintf("%d configuration files written", len(written)))
}

func (ctl *Controller) configData(ic *session.InstallationContext, modules []string) service.ConfigData {
	return service.ConfigData{
		DB:          *ic.DB,
		Charset:     ctl.opts.Charset,
		SiteName:    ic.SiteName,
		SiteURL:     ic.SiteURL,
		AdminEmail:  ic.Admin.Email,
		LoginPath:   ctl.cfg.Install.LoginPath,
		Modules:     modules,
		InstallID:   ctl.InstallID,
		InstalledAt: ctl.now().UTC().Format("2006-01-02 15:04:05"),
		Version:     ctl.Version,
		Language:    ctl.cfg.Install.DefaultLanguage,
		Timezone:    ctl.cfg.Install.DefaultTimezone,
		Debug:       ctl.cfg.IsDevelopment(),
	}
}

func (ctl *Controller) handleComplete(ic *session.InstallationContext, form url.Values, res *Result) {
	if !config.IsTruthy(form.Get("remove_installer")) {
		res.Success = append(res.Success, "Installation complete")
		return
	}

	cleanup := service.NewCleanup(ctl.cfg.Paths.AppRoot, ctl.cfg.Paths.InstallerDir, ctl.cfg.Cleanup.Files, ctl.logger)
	batch := cleanup.Run()
	for _, item := range batch.Failed() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Could not remove %s", item.Name))
	}
	ctl.logger.Info("Cleanup: %s", batch.Summary())

	res.Redirect = LoginURL(ic.SiteURL, ctl.cfg.Install.LoginPath)
	res.Success = append(res.Success, "Installer removed")
}

// LoginURL joins the login path onto the site URL
func LoginURL(siteURL, loginPath string) string {
	if loginPath == "" {
		loginPath = "/"
	}
	if strings.HasPrefix(loginPath, "http://") || strings.HasPrefix(loginPath, "https://") {
		return loginPath
	}
	return strings.TrimRight(siteURL, "/") + "/" + strings.TrimLeft(loginPath, "/")
}
