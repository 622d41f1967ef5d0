package config

import (
	"context"
	"log/slog"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: transport", "value", s.Transport)
	if s.Transport == "sse" {
		logger.InfoContext(ctx, "Config: host", "value", s.Host)
		logger.InfoContext(ctx, "Config: port", "value", s.Port)
	}

	logger.InfoContext(ctx, "Config: index", "value", IndexSettingsLogValue(s.Index))
	logger.InfoContext(ctx, "Config: search", "value", SearchSettingsLogValue(s.Search))
}

// IndexSettingsLogValue returns a slog.Value for IndexSettings
func IndexSettingsLogValue(s IndexSettings) slog.Value {
	return slog.GroupValue(
		slog.String("data_dir", s.DataDir),
		slog.String("catalog", s.Catalog),
		slog.Duration("update_interval", s.UpdateInterval),
		slog.Bool("update_on_start", s.UpdateOnStart),
		slog.Int("parallelism", s.Parallelism),
		slog.Int("batch_threshold", s.BatchThreshold),
		slog.Int("lines_cache_size", s.LinesCacheSize),
		slog.Int("files_cache_size", s.FilesCacheSize),
		slog.Int64("max_file_size", s.MaxFileSize),
		slog.Int("clone_depth", s.CloneDepth),
		slog.Int("exclude_patterns", len(s.Exclude)),
	)
}

// SearchSettingsLogValue returns a slog.Value for SearchSettings
func SearchSettingsLogValue(s SearchSettings) slog.Value {
	return slog.GroupValue(
		slog.Int("max_results", s.MaxResults),
		slog.Int("snippet_radius", s.SnippetRadius),
		slog.Int("filter_cache_size", s.FilterCacheSize),
	)
}

// SettingsLogValue returns a slog.Value for Settings
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("transport", s.Transport),
		slog.String("host", s.Host),
		slog.Int("port", s.Port),
		slog.Any("index", IndexSettingsLogValue(s.Index)),
		slog.Any("search", SearchSettingsLogValue(s.Search)),
	)
}
