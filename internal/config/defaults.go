package config

const (
	defaultOutputDir          = "~/.local/share/recflow/output"
	defaultWorkspaceDir       = "~/.config/recflow/tasks"
	defaultLogDir             = "~/.local/share/recflow/logs"
	defaultBatchParallel      = 3
	defaultBatchHardCap       = 8
	defaultBatchPattern       = "*.csv"
	defaultBatchMinFreeGiB    = 1
	defaultMinDurationSeconds = 60
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// DefaultStages lists the stages every built-in task declares when a task
// definition omits its own required-stage list.
var DefaultStages = []string{"post_import", "post_clean_raw", "post_epochs", "post_comp"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:    defaultOutputDir,
			WorkspaceDir: defaultWorkspaceDir,
			LogDir:       defaultLogDir,
		},
		Batch: Batch{
			Parallel:   defaultBatchParallel,
			HardCap:    defaultBatchHardCap,
			Pattern:    defaultBatchPattern,
			MinFreeGiB: defaultBatchMinFreeGiB,
		},
		Quality: Quality{
			MinDurationSeconds: defaultMinDurationSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Stages:   defaultStageMap(),
		Settings: map[string]any{},
	}
}

func defaultStageMap() map[string]StageToggle {
	return map[string]StageToggle{
		"post_import":       {Enabled: true, Suffix: "_postimport"},
		"post_clean_raw":    {Enabled: true, Suffix: "_postcleanraw"},
		"post_epochs":       {Enabled: true, Suffix: "_postepochs"},
		"post_comp":         {Enabled: true, Suffix: "_postcomp"},
		"post_filter":       {Enabled: true, Suffix: "_postfilter"},
		"post_bad_channels": {Enabled: true, Suffix: "_postbadchans"},
		"post_resample":     {Enabled: false, Suffix: "_postresample"},
	}
}
