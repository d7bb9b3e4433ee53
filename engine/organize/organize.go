// Package organize rearranges handler output into a stable library layout,
// one directory per subreddit with a subdirectory per post.
package organize

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/engine/pipeline"
	"github.com/lurkhq/lurk/internal/config"
)

// StageName is the organize stage's registered name.
const StageName = "organize"

// Stage moves each post's output files under
// <output_dir>/<subreddit>/<post-id>/ and rewrites the annotations to the new
// locations. Posts without output files are left alone.
type Stage struct {
	logger *slog.Logger
}

// NewStage creates the organize stage.
func NewStage(logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{logger: logger}
}

func (s *Stage) Name() string { return StageName }

func (s *Stage) ValidateConfig(cfg *config.Config) []error {
	if cfg.Organize && cfg.OutputDir == "" {
		return []error{domain.NewRecord(domain.KindConfiguration,
			"organize requires output_dir")}
	}
	return nil
}

func (s *Stage) Process(_ context.Context, run *pipeline.Context) (*pipeline.StageResult, error) {
	result := pipeline.NewStageResult(StageName)
	result.Partial = true

	if !run.Config.Organize {
		result.Data["moved"] = 0
		return result, nil
	}

	moved := 0
	for i := range run.Posts {
		post := &run.Posts[i]
		if len(post.Annotations.OutputPaths) == 0 {
			continue
		}
		result.Processed++

		sub := post.Subreddit
		if sub == "" {
			sub = "_unsorted"
		}
		destDir := filepath.Join(run.Config.OutputDir, sub, post.ID)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			result.AddError(domain.Wrap(domain.KindFilesystem, "mkdir "+destDir, err))
			continue
		}

		ok := true
		newPaths := make([]string, 0, len(post.Annotations.OutputPaths))
		for _, src := range post.Annotations.OutputPaths {
			dest := filepath.Join(destDir, filepath.Base(src))
			if src == dest {
				newPaths = append(newPaths, dest)
				continue
			}
			if err := moveFile(src, dest); err != nil {
				result.AddError(err)
				newPaths = append(newPaths, src)
				ok = false
				continue
			}
			newPaths = append(newPaths, dest)
			moved++
		}
		post.Annotations.OutputPaths = newPaths
		if sc := post.Annotations.SidecarPath; sc != "" {
			dest := filepath.Join(destDir, filepath.Base(sc))
			if sc != dest {
				if err := moveFile(sc, dest); err == nil {
					post.Annotations.SidecarPath = dest
					moved++
				} else {
					result.AddError(err)
					ok = false
				}
			}
		}
		if !ok {
			s.logger.Warn("post partially organized", "post", post.ID, "dir", destDir)
		}
	}

	result.Data["moved"] = moved
	s.logger.Info("library organized", "posts", result.Processed, "files_moved", moved)
	return result, nil
}

// moveFile renames src to dest, falling back to copy+remove across devices.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return domain.Wrap(domain.KindFilesystem, "read "+src, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return domain.Wrap(domain.KindFilesystem, "write "+dest, err)
	}
	if err := os.Remove(src); err != nil {
		return domain.Wrap(domain.KindFilesystem, "remove "+src, err)
	}
	return nil
}

var _ pipeline.Stage = (*Stage)(nil)
