package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/curator/internal/models"
	"github.com/desertthunder/curator/internal/shared"
)

func (d *Deps) cacheClear(ctx context.Context, job *Job, p *models.CacheClearPayload) (Result, error) {
	if d.Cache == nil {
		return Success("cache_disabled"), nil
	}
	n, err := d.Cache.Clear(ctx, p.Reference)
	if err != nil {
		return Failure(fmt.Sprintf("failed to clear cache: %v", err)), nil
	}
	job.Logger.Info("cache cleared", "prefix", p.Reference, "entries", n)
	return Success(MsgUpdated).With("cleared", n), nil
}

// pluginFailure converts a plugin manager error into a result. Missing plugins and invalid input
// fail the task; anything else is unexpected.
func pluginFailure(err error) (Result, error) {
	switch {
	case errors.Is(err, shared.ErrEntityNotFound),
		errors.Is(err, shared.ErrInvalidInput),
		errors.Is(err, shared.ErrCommandFailed),
		errors.Is(err, shared.ErrTimeout):
		return Failure(err.Error()), nil
	default:
		return Result{}, err
	}
}

func pluginResult(msg string, p *models.Plugin) Result {
	return Success(msg).With("plugin_id", p.ID).With("name", p.Name).With("version", p.Version)
}

// migrate runs the plugin's migrations. A failing migration is recorded on the result but does not fail the task.
func (d *Deps) migrate(ctx context.Context, job *Job, p *models.Plugin, res Result) Result {
	if err := d.Plugins.Migrate(ctx, p); err != nil {
		job.Logger.Warn("plugin migration failed", "plugin", p.Name, "error", err)
		return res.With("migration_error", err.Error())
	}
	return res
}

func (d *Deps) pluginInstall(ctx context.Context, job *Job, p *models.PluginInstallPayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.InstallLocal(ctx, p.Reference)
	if errors.Is(err, shared.ErrAlreadyExists) && plugin != nil {
		return pluginResult(MsgAlreadyExists, plugin), nil
	} else if err != nil {
		return pluginFailure(err)
	}
	return d.migrate(ctx, job, plugin, pluginResult(MsgCreated, plugin)), nil
}

func (d *Deps) remotePluginInstall(ctx context.Context, job *Job, p *models.RemotePluginInstallPayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.InstallRemote(ctx, p.Reference, p.ReferenceType, p.TargetVersion)
	if errors.Is(err, shared.ErrAlreadyExists) && plugin != nil {
		return pluginResult(MsgAlreadyExists, plugin), nil
	} else if err != nil {
		return pluginFailure(err)
	}
	return d.migrate(ctx, job, plugin, pluginResult(MsgCreated, plugin)), nil
}

func (d *Deps) pluginUninstall(ctx context.Context, job *Job, p *models.PluginPayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.Uninstall(ctx, p.PluginID)
	if errors.Is(err, shared.ErrEntityNotFound) {
		return Success(MsgAlreadyGone), nil
	} else if err != nil {
		return pluginFailure(err)
	}
	return pluginResult(MsgUpdated, plugin), nil
}

func (d *Deps) setPluginEnabled(ctx context.Context, job *Job, p *models.PluginPayload, enabled bool) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, changed, err := d.Plugins.SetEnabled(ctx, p.PluginID, enabled)
	if err != nil {
		return pluginFailure(err)
	}
	if !changed {
		if enabled {
			return pluginResult(MsgAlreadyEnabled, plugin), nil
		}
		return pluginResult(MsgAlreadyDisabled, plugin), nil
	}
	job.Logger.Info("plugin state changed", "plugin", plugin.Name, "enabled", enabled)
	return pluginResult(MsgUpdated, plugin).With("enabled", enabled), nil
}

func (d *Deps) pluginUpgrade(ctx context.Context, job *Job, p *models.PluginUpgradePayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.Upgrade(ctx, p.PluginID, p.TargetVersion)
	if err != nil {
		return pluginFailure(err)
	}
	return d.migrate(ctx, job, plugin, pluginResult(MsgUpdated, plugin)), nil
}

func (d *Deps) pluginReferenceChange(ctx context.Context, job *Job, p *models.PluginReferenceChangePayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.ChangeReference(ctx, p.PluginID, p.ReferenceType, p.Reference)
	if err != nil {
		return pluginFailure(err)
	}
	res := pluginResult(MsgUpdated, plugin).With("reference", plugin.Reference).With("reference_type", plugin.ReferenceType)
	return d.migrate(ctx, job, plugin, res), nil
}

func (d *Deps) npmBuild(ctx context.Context, job *Job, p *models.PluginPayload) (Result, error) {
	if d.Plugins == nil {
		return Failure("plugins are not configured"), nil
	}
	plugin, err := d.Plugins.Build(ctx, p.PluginID)
	if err != nil {
		return pluginFailure(err)
	}
	job.Logger.Info("plugin built", "plugin", plugin.Name)
	return pluginResult(MsgUpdated, plugin), nil
}
