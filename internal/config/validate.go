package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"text/template"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for required fields and valid values.
func Validate(c Config) error {
	var errors []string

	for _, err := range validateFileServer(c.FileServer) {
		errors = append(errors, err.Error())
	}

	for _, err := range validateLocalServer(c.LocalServer) {
		errors = append(errors, err.Error())
	}

	for _, err := range validateDiscord(c.Discord) {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func validateFileServer(f FileServer) []error {
	var errs []error

	if err := validateHTTPURL("fileserver.url", f.URL, true); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("fileserver.cdn_url", f.CDNURL, true); err != nil {
		errs = append(errs, err)
	}

	if strings.Count(f.ArchivePattern, "%s") != 1 {
		errs = append(errs, ValidationError{
			Field:   "fileserver.archive_pattern",
			Message: fmt.Sprintf("pattern '%s' must contain exactly one %%s", f.ArchivePattern),
		})
	}

	if f.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "fileserver.timeout_seconds",
			Message: "must be positive",
		})
	}

	return errs
}

func validateLocalServer(l LocalServer) []error {
	var errs []error

	if l.ServerFullpath == "" {
		errs = append(errs, ValidationError{
			Field:   "local_server.server_fullpath",
			Message: "server_fullpath is required (run 'vsupdater configure <path>')",
		})
		return errs
	}

	if !filepath.IsAbs(l.ServerFullpath) {
		errs = append(errs, ValidationError{
			Field:   "local_server.server_fullpath",
			Message: fmt.Sprintf("path '%s' must be absolute", l.ServerFullpath),
		})
	}

	if PathsOverlap(l.BackupPath(), l.ServerFullpath) {
		errs = append(errs, ValidationError{
			Field:   "local_server.backup_fullpath",
			Message: fmt.Sprintf("backup path '%s' must differ from and not be nested with the server path", l.BackupPath()),
		})
	}

	worldRoot := l.WorldBackupRoot()
	if PathsOverlap(worldRoot, l.ServerFullpath) || PathsOverlap(worldRoot, l.BackupPath()) {
		errs = append(errs, ValidationError{
			Field:   "local_server.world_backup_path",
			Message: fmt.Sprintf("world backup path '%s' must be outside the server and backup paths", worldRoot),
		})
	}

	if l.ServiceTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "local_server.service_timeout_seconds",
			Message: "must be positive",
		})
	}

	return errs
}

func validateDiscord(d Discord) []error {
	var errs []error

	if d.Enabled && d.WebhookURL == "" {
		errs = append(errs, ValidationError{
			Field:   "discord.webhook_url",
			Message: "webhook_url is required when discord is enabled",
		})
	}
	if err := validateHTTPURL("discord.webhook_url", d.WebhookURL, false); err != nil {
		errs = append(errs, err)
	}
	if err := validateHTTPURL("discord.error_webhook_url", d.ErrorWebhookURL, false); err != nil {
		errs = append(errs, err)
	}

	if d.Enabled && d.TimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "discord.timeout_seconds",
			Message: "must be positive",
		})
	}

	templates := map[string]string{
		"discord.success_title":    d.SuccessTitle,
		"discord.success_template": d.SuccessTemplate,
		"discord.error_title":      d.ErrorTitle,
		"discord.error_template":   d.ErrorTemplate,
	}
	for field, text := range templates {
		if _, err := template.New(field).Parse(text); err != nil {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("invalid template: %v", err),
			})
		}
	}

	return errs
}

// PathsOverlap reports whether a and b are the same directory or one
// contains the other.
func PathsOverlap(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return true
	}
	return within(absA, absB) || within(absB, absA)
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func validateHTTPURL(field, raw string, required bool) error {
	if raw == "" {
		if required {
			return ValidationError{Field: field, Message: "url is required"}
		}
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ValidationError{
			Field:   field,
			Message: fmt.Sprintf("invalid url '%s' (must be http or https)", raw),
		}
	}

	return nil
}
