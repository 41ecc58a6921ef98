package handler

import (
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/apimgr/memberkit/src/config"
	"github.com/apimgr/memberkit/src/server/session"
	"github.com/apimgr/memberkit/src/utils"
)

var stepLabels = map[Step]string{
	StepRequirements:  "Requirements",
	StepDatabase:      "Database",
	StepAdminAccount:  "Administrator",
	StepModules:       "Modules",
	StepConfiguration: "Configuration",
	StepComplete:      "Complete",
}

// Label is the progress bar caption
func (s Step) Label() string {
	return stepLabels[s]
}

// secretFields are never echoed back into a re-rendered form
var secretFields = map[string]bool{
	"db_pass":        true,
	"admin_password": true,
	"admin_confirm":  true,
	"csrf_token":     true,
}

// SetupHandler serves the wizard pages
type SetupHandler struct {
	ctl    *Controller
	store  *session.Store
	cfg    *config.Config
	logger *utils.Logger

	// OnComplete runs after the installer removed itself
	OnComplete func()
}

// NewSetupHandler creates the HTTP side of the wizard
func NewSetupHandler(ctl *Controller, store *session.Store, cfg *config.Config, logger *utils.Logger) *SetupHandler {
	return &SetupHandler{ctl: ctl, store: store, cfg: cfg, logger: logger}
}

// IsInstalled reports whether the marker file exists
func IsInstalled(cfg *config.Config) bool {
	_, err := os.Stat(cfg.AppPath(cfg.Paths.Marker))
	return err == nil
}

// ShowStep handles GET on the wizard. ?step=n revisits a completed step.
func (h *SetupHandler) ShowStep(c *gin.Context) {
	ic := h.store.Load(c)
	ic.Lock()
	defer ic.Unlock()

	if s, ok := ParseStep(c.Query("step")); ok && int(s) <= ic.MaxStep {
		ic.Step = int(s)
	}

	var res Result
	if Step(ic.Step) == StepRequirements {
		report := h.ctl.Probe(c.Request.Context())
		res.Report = &report
	}
	h.render(c, http.StatusOK, ic, &res, nil)
}

// Submit handles POST on the wizard
func (h *SetupHandler) Submit(c *gin.Context) {
	ic := h.store.Load(c)
	ic.Lock()
	defer ic.Unlock()

	if err := c.Request.ParseForm(); err != nil {
		RespondError(c, http.StatusBadRequest, ErrInvalidInput, "Invalid form submission")
		return
	}
	form := c.Request.PostForm

	step, ok := ParseStep(form.Get("step"))
	if !ok {
		step = Step(ic.Step)
	}

	if ic.SiteURL == "" {
		ic.SiteURL = h.cfg.Install.SiteURL
		if ic.SiteURL == "" {
			ic.SiteURL = utils.SiteURL(c, h.cfg.Server.BasePath)
		}
	}

	res := h.ctl.Handle(c.Request.Context(), ic, step, form)

	if res.Redirect != "" {
		h.logger.Info("Installation %s finished, redirecting to %s", ic.ID, res.Redirect)
		h.store.Clear(c, ic)
		if WantsJSON(c) {
			c.JSON(http.StatusOK, gin.H{
				"ok":       true,
				"redirect": res.Redirect,
				"success":  res.Success,
				"warnings": res.Warnings,
			})
		} else {
			c.Redirect(http.StatusSeeOther, res.Redirect)
		}
		if h.OnComplete != nil {
			go h.OnComplete()
		}
		return
	}

	var fields map[string]string
	if !res.OK() {
		fields = preservedFields(form)
	}
	if Step(ic.Step) == StepRequirements && res.Report == nil {
		report := h.ctl.Probe(c.Request.Context())
		res.Report = &report
	}
	h.render(c, http.StatusOK, ic, &res, fields)
}

// Status handles GET {base}/status for automation
func (h *SetupHandler) Status(c *gin.Context) {
	data := gin.H{
		"installed": IsInstalled(h.cfg),
		"version":   h.ctl.Version,
		"sessions":  h.store.Count(),
		"steps":     stepList(nil),
	}
	if id, err := c.Cookie(h.store.CookieName()); err == nil {
		if ic, ok := h.store.Get(id); ok {
			ic.Lock()
			data["step"] = ic.Step
			data["max_step"] = ic.MaxStep
			ic.Unlock()
		}
	}
	c.JSON(http.StatusOK, data)
}

// ShowInstalled renders the already-installed page
func (h *SetupHandler) ShowInstalled(c *gin.Context) {
	if WantsJSON(c) {
		RespondError(c, http.StatusOK, ErrAlreadyInstalled, "The application is already installed")
		return
	}
	c.HTML(http.StatusOK, "installed.tmpl", gin.H{
		"Title":     "Already installed",
		"LoginURL":  LoginURL(h.cfg.Install.SiteURL, h.cfg.Install.LoginPath),
		"ForceURL":  h.cfg.Server.BasePath + "?force=1",
		"BasePath":  h.cfg.Server.BasePath,
		"Version":   h.ctl.Version,
		"CSRFToken": c.GetString("csrf_token"),
	})
}

func preservedFields(form map[string][]string) map[string]string {
	fields := make(map[string]string)
	for k, v := range form {
		if secretFields[k] || len(v) == 0 {
			continue
		}
		fields[k] = v[0]
	}
	return fields
}

type stepView struct {
	Number  int    `json:"number"`
	Name    string `json:"name"`
	Label   string `json:"label"`
	Done    bool   `json:"done"`
	Current bool   `json:"current"`
}

func stepList(ic *session.InstallationContext) []stepView {
	var steps []stepView
	for s := StepRequirements; s <= StepComplete; s++ {
		v := stepView{Number: int(s), Name: s.String(), Label: s.Label()}
		if ic != nil {
			v.Done = int(s) < ic.MaxStep
			v.Current = int(s) == ic.Step
		}
		steps = append(steps, v)
	}
	return steps
}

type moduleView struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
	Selected    bool   `json:"selected"`
}

func (h *SetupHandler) moduleList(ic *session.InstallationContext) []moduleView {
	chosen := make(map[string]bool)
	for _, name := range ic.SelectedModules {
		chosen[name] = true
	}
	var out []moduleView
	for _, def := range h.ctl.Registry().All() {
		selected := chosen[def.Name]
		if ic.SelectedModules == nil {
			selected = def.AutoEnable
		}
		out = append(out, moduleView{
			Name:        def.Name,
			Title:       def.Title,
			Description: def.Description,
			Version:     def.Version,
			Selected:    selected,
		})
	}
	return out
}

func (h *SetupHandler) render(c *gin.Context, status int, ic *session.InstallationContext, res *Result, fields map[string]string) {
	step := Step(ic.Step)
	if fields == nil {
		fields = h.defaultFields(ic)
	}

	if WantsJSON(c) {
		data := gin.H{
			"ok":       res.OK(),
			"step":     ic.Step,
			"max_step": ic.MaxStep,
			"name":     step.String(),
			"errors":   res.Errors,
			"warnings": res.Warnings,
			"success":  res.Success,
			"invalid":  res.Invalid,
			"fields":   fields,
		}
		if res.Report != nil {
			data["report"] = res.Report
		}
		if step == StepModules {
			data["modules"] = h.moduleList(ic)
		}
		c.JSON(status, data)
		return
	}

	data := gin.H{
		"Title":     step.Label() + " - Installation",
		"Step":      ic.Step,
		"StepName":  step.String(),
		"Steps":     stepList(ic),
		"Errors":    res.Errors,
		"Warnings":  res.Warnings,
		"Success":   res.Success,
		"Invalid":   invalidSet(res.Invalid),
		"Fields":    fields,
		"Report":    res.Report,
		"BasePath":  h.cfg.Server.BasePath,
		"Driver":    h.cfg.Database.Driver,
		"Version":   h.ctl.Version,
		"CSRFToken": c.GetString("csrf_token"),
		"Generated": ic.Generated,
		"LoginURL":  LoginURL(ic.SiteURL, h.cfg.Install.LoginPath),
	}
	if step == StepModules {
		data["Modules"] = h.moduleList(ic)
	}
	if ic.Admin != nil {
		data["Admin"] = ic.Admin
	}
	c.HTML(status, "wizard.tmpl", data)
}

// defaultFields pre-fills forms from the context and config
func (h *SetupHandler) defaultFields(ic *session.InstallationContext) map[string]string {
	fields := map[string]string{
		"db_driver": h.cfg.Database.Driver,
		"db_host":   h.cfg.Database.DefaultHost,
		"db_port":   strconv.Itoa(h.cfg.Database.DefaultPort),
	}
	if ic.DB != nil {
		fields["db_driver"] = ic.DB.Driver
		fields["db_host"] = ic.DB.Host
		fields["db_name"] = ic.DB.Name
		fields["db_user"] = ic.DB.User
		if ic.DB.Port != 0 {
			fields["db_port"] = strconv.Itoa(ic.DB.Port)
		}
	}
	if ic.Admin != nil {
		fields["admin_name"] = ic.Admin.Name
		fields["admin_email"] = ic.Admin.Email
	}
	if ic.SiteName != "" {
		fields["site_name"] = ic.SiteName
	}
	return fields
}

func invalidSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
